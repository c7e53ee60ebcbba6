package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"settlenet/core/types"
	"settlenet/storage"
)

var (
	// ErrTokenExists indicates an attempt to register a symbol twice.
	ErrTokenExists = errors.New("state: token already registered")
	// ErrTokenUnknown indicates an operation against an unregistered symbol.
	ErrTokenUnknown = errors.New("state: token not registered")
	// ErrInsufficientBalance indicates a debit larger than the held balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrInsufficientAllowance indicates a spend larger than the granted allowance.
	ErrInsufficientAllowance = errors.New("state: insufficient allowance")
	// ErrTransferRestricted indicates the recipient is barred from receiving the asset.
	ErrTransferRestricted = errors.New("state: recipient transfer restricted")
	// ErrNegativeAmount indicates a negative balance or transfer amount.
	ErrNegativeAmount = errors.New("state: negative amount")
)

// Manager provides read and write access to settlement state for the duration
// of one call. Writes land in an in-memory journal; Commit flushes the journal
// atomically, discarding the manager rolls the call back.
type Manager struct {
	db      storage.Database
	journal map[string][]byte
	events  []*types.Event
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, journal: make(map[string][]byte)}
}

// TokenMetadata describes a registered settlement asset.
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

var (
	tokenPrefix       = []byte("token:")
	balancePrefix     = []byte("balance:")
	allowancePrefix   = []byte("allowance:")
	restrictionPrefix = []byte("restriction:")
)

func tokenMetadataKey(symbol string) []byte {
	buf := make([]byte, len(tokenPrefix)+len(symbol))
	copy(buf, tokenPrefix)
	copy(buf[len(tokenPrefix):], symbol)
	return ethcrypto.Keccak256(buf)
}

func balanceKey(addr []byte, symbol string) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(symbol)+1+len(addr))
	buf = append(buf, balancePrefix...)
	buf = append(buf, symbol...)
	buf = append(buf, ':')
	buf = append(buf, addr...)
	return ethcrypto.Keccak256(buf)
}

func allowanceKey(owner, spender []byte, symbol string) []byte {
	buf := make([]byte, 0, len(allowancePrefix)+len(symbol)+2+len(owner)+len(spender))
	buf = append(buf, allowancePrefix...)
	buf = append(buf, symbol...)
	buf = append(buf, ':')
	buf = append(buf, owner...)
	buf = append(buf, ':')
	buf = append(buf, spender...)
	return ethcrypto.Keccak256(buf)
}

func restrictionKey(symbol string, addr []byte) []byte {
	buf := make([]byte, 0, len(restrictionPrefix)+len(symbol)+1+len(addr))
	buf = append(buf, restrictionPrefix...)
	buf = append(buf, symbol...)
	buf = append(buf, ':')
	buf = append(buf, addr...)
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) raw(hashed []byte) ([]byte, error) {
	if value, ok := m.journal[string(hashed)]; ok {
		return value, nil
	}
	value, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (m *Manager) write(hashed, value []byte) {
	m.journal[string(hashed)] = value
}

// Commit flushes the journal to the backing database as one batch.
func (m *Manager) Commit() error {
	if len(m.journal) == 0 {
		return nil
	}
	return m.db.WriteBatch(m.journal)
}

// RegisterToken stores the metadata for a settlement asset.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) error {
	if symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrTokenUnknown)
	}
	existing, err := m.raw(tokenMetadataKey(symbol))
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: %s", ErrTokenExists, symbol)
	}
	encoded, err := rlp.EncodeToBytes(&TokenMetadata{Symbol: symbol, Name: name, Decimals: decimals})
	if err != nil {
		return err
	}
	m.write(tokenMetadataKey(symbol), encoded)
	return nil
}

// Token returns the metadata for the supplied symbol.
func (m *Manager) Token(symbol string) (*TokenMetadata, error) {
	data, err := m.raw(tokenMetadataKey(symbol))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTokenUnknown, symbol)
	}
	meta := new(TokenMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// TokenExists reports whether the symbol is registered.
func (m *Manager) TokenExists(symbol string) bool {
	data, err := m.raw(tokenMetadataKey(symbol))
	return err == nil && len(data) > 0
}

// SetBalance overwrites the balance for (addr, symbol).
func (m *Manager) SetBalance(addr []byte, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	m.write(balanceKey(addr, symbol), encoded)
	return nil
}

// Balance returns the balance for (addr, symbol), zero when unset.
func (m *Manager) Balance(addr []byte, symbol string) (*big.Int, error) {
	data, err := m.raw(balanceKey(addr, symbol))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(data, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// SetTransferRestricted flags or clears an address as barred from receiving
// the asset. It models venue-side assets that reject transfers to specific
// recipients.
func (m *Manager) SetTransferRestricted(symbol string, addr []byte, restricted bool) error {
	encoded, err := rlp.EncodeToBytes(restricted)
	if err != nil {
		return err
	}
	m.write(restrictionKey(symbol, addr), encoded)
	return nil
}

// IsTransferRestricted reports whether the address may not receive the asset.
func (m *Manager) IsTransferRestricted(symbol string, addr []byte) bool {
	data, err := m.raw(restrictionKey(symbol, addr))
	if err != nil || len(data) == 0 {
		return false
	}
	var restricted bool
	if err := rlp.DecodeBytes(data, &restricted); err != nil {
		return false
	}
	return restricted
}

// Transfer moves amount of symbol between accounts, honouring recipient
// transfer restrictions. A zero amount is a no-op.
func (m *Manager) Transfer(from, to []byte, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if m.IsTransferRestricted(symbol, to) {
		return fmt.Errorf("%w: %s", ErrTransferRestricted, symbol)
	}
	return m.ForceTransfer(from, to, symbol, amount)
}

// ForceTransfer moves amount of symbol between accounts ignoring recipient
// restrictions. It backs the seizure path, which must never strand funds.
func (m *Manager) ForceTransfer(from, to []byte, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	if !m.TokenExists(symbol) {
		return fmt.Errorf("%w: %s", ErrTokenUnknown, symbol)
	}
	fromBal, err := m.Balance(from, symbol)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, symbol)
	}
	toBal, err := m.Balance(to, symbol)
	if err != nil {
		return err
	}
	if err := m.SetBalance(from, symbol, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return m.SetBalance(to, symbol, new(big.Int).Add(toBal, amount))
}

// SetAllowance overwrites the allowance granted by owner to spender.
func (m *Manager) SetAllowance(owner, spender []byte, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	m.write(allowanceKey(owner, spender, symbol), encoded)
	return nil
}

// Allowance returns the allowance granted by owner to spender, zero when unset.
func (m *Manager) Allowance(owner, spender []byte, symbol string) (*big.Int, error) {
	data, err := m.raw(allowanceKey(owner, spender, symbol))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	allowance := new(big.Int)
	if err := rlp.DecodeBytes(data, allowance); err != nil {
		return nil, err
	}
	return allowance, nil
}

// SpendAllowance reduces the allowance by amount, failing when short.
func (m *Manager) SpendAllowance(owner, spender []byte, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	allowance, err := m.Allowance(owner, spender, symbol)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientAllowance, symbol)
	}
	return m.SetAllowance(owner, spender, symbol, new(big.Int).Sub(allowance, amount))
}

// KVPut stores an RLP-encoded value under a namespaced, hashed key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.write(kvKey(key), encoded)
	return nil
}

// KVGet loads a value previously stored with KVPut. The boolean reports
// whether the key was present.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	data, err := m.raw(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// AppendEvent records an event emitted during this call. Events are only
// published if the call commits.
func (m *Manager) AppendEvent(evt *types.Event) {
	if evt == nil {
		return
	}
	m.events = append(m.events, evt)
}

// Events returns the events collected during this call in emission order.
func (m *Manager) Events() []*types.Event {
	return m.events
}
