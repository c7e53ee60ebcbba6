package referral

import "errors"

var (
	ErrNotApprovedSeller       = errors.New("referral: referrer is not an approved seller")
	ErrSellerCannotSetReferrer = errors.New("referral: sellers cannot hold a referrer")
	ErrCircularReferral        = errors.New("referral: circular referral chain")
	ErrAlreadyRegistered       = errors.New("referral: referrer already set")
	ErrZeroAmount              = errors.New("referral: zero fee amount")
)
