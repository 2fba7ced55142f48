package ledger

import (
	"math"
	"math/bits"
	"strconv"
)

// CustodyAccount is the account that holds escrowed donations and the
// accrued fee pool inside the token transfer service.
const CustodyAccount = "cfl:escrow"

// MaxMetadataRefLength bounds the opaque metadata reference.
const MaxMetadataRefLength = 256

const basisPointsDenominator = 10000

// TokenTransfer moves value between accounts. Transfer must be all-or-nothing:
// a non-nil error means no balance changed.
type TokenTransfer interface {
	Transfer(token string, amount uint64, from, to string) error
}

// HeightSource supplies the current block height used for deadline checks.
type HeightSource interface {
	Height() uint64
}

// HeightFunc adapts a plain function to HeightSource.
type HeightFunc func() uint64

func (f HeightFunc) Height() uint64 { return f() }

// Ledger executes campaign operations against a State. It performs no
// locking of its own: callers must run operations one at a time.
type Ledger struct {
	state  *State
	tokens TokenTransfer
	clock  HeightSource
	events []Event
}

// New returns a ledger operating on state. A nil state starts an empty ledger
// with default parameters.
func New(state *State, tokens TokenTransfer, clock HeightSource) *Ledger {
	if state == nil {
		state = NewState(Params{FeeRateBasisPoints: DefaultFeeRateBasisPoints})
	}
	return &Ledger{state: state, tokens: tokens, clock: clock}
}

// State exposes the underlying state for snapshotting.
func (l *Ledger) State() *State {
	return l.state
}

func (l *Ledger) height() uint64 {
	if l.clock == nil {
		return 0
	}
	return l.clock.Height()
}

// CreateCampaign registers a new campaign owned by caller and returns its id.
func (l *Ledger) CreateCampaign(caller, metadataRef string, goal, duration uint64) (uint64, error) {
	if goal == 0 || duration == 0 {
		return 0, ErrInvalidAmount
	}
	if err := ValidateMetadataRef(metadataRef); err != nil {
		return 0, err
	}
	now := l.height()
	deadline, ok := addUint64(now, duration)
	if !ok || l.state.CampaignSeq == math.MaxUint64 {
		return 0, ErrInvalidAmount
	}

	l.state.CampaignSeq++
	id := l.state.CampaignSeq
	l.state.Campaigns[id] = &Campaign{
		ID:            id,
		Owner:         caller,
		MetadataRef:   metadataRef,
		Goal:          goal,
		Deadline:      deadline,
		CreatedAt:     now,
		RefundEnabled: true,
	}
	l.state.Backers[id] = 0

	l.emit(EventCampaignCreated, id,
		attr("owner", caller),
		attr("goal", u64(goal)),
		attr("deadline", u64(deadline)),
		attr("metadata-ref", metadataRef),
	)
	return id, nil
}

// Donate moves amount of token from caller into escrow and credits the
// campaign. Repeat donations aggregate into the same donation record.
func (l *Ledger) Donate(caller string, campaignID, amount uint64, token string) error {
	c, ok := l.state.Campaigns[campaignID]
	if !ok {
		return ErrCampaignNotFound
	}
	if l.height() > c.Deadline {
		return ErrCampaignExpired
	}
	if c.Token != "" && token != c.Token {
		return ErrTokenMismatch
	}
	if err := l.checkCredit(c, caller, amount); err != nil {
		return err
	}

	if err := l.tokens.Transfer(token, amount, caller, CustodyAccount); err != nil {
		return transferFailed(err)
	}

	c.Token = token
	c.Escrowed += amount
	l.credit(c, caller, amount)
	l.emit(EventDonationReceived, campaignID,
		attr("donor", caller),
		attr("amount", u64(amount)),
		attr("new-total", u64(c.Raised)),
		attr("token", token),
	)
	return nil
}

// RegisterDeposit lets a campaign owner record a deposit that reached them
// outside the ledger (for example through a bridge). No tokens move, so the
// deposit counts towards the goal but never leaves custody on claim or refund.
func (l *Ledger) RegisterDeposit(caller string, campaignID, amount uint64, donor string) error {
	if !l.state.Params.AllowRegisteredDeposits {
		return ErrUnauthorized
	}
	c, ok := l.state.Campaigns[campaignID]
	if !ok {
		return ErrCampaignNotFound
	}
	if caller != c.Owner {
		return ErrNotOwner
	}
	if l.height() > c.Deadline {
		return ErrCampaignExpired
	}
	if donor == "" {
		return ErrInvalidAmount
	}
	if err := l.checkCredit(c, donor, amount); err != nil {
		return err
	}

	l.credit(c, donor, amount).Registered += amount
	l.emit(EventDepositRegistered, campaignID,
		attr("donor", donor),
		attr("amount", u64(amount)),
		attr("new-total", u64(c.Raised)),
	)
	return nil
}

// ClaimFunds splits the raised amount into payout and platform fee and
// returns both. Only the escrowed share moves: its payout goes to the owner in
// the campaign token and its fee accrues into that token's pool. Registered
// deposits are settled off-ledger. It succeeds at most once per campaign.
func (l *Ledger) ClaimFunds(caller string, campaignID uint64, token string) (payout, fee uint64, err error) {
	c, ok := l.state.Campaigns[campaignID]
	if !ok {
		return 0, 0, ErrCampaignNotFound
	}
	if caller != c.Owner {
		return 0, 0, ErrNotOwner
	}
	if c.Raised < c.Goal {
		return 0, 0, ErrGoalNotMet
	}
	if c.Claimed {
		return 0, 0, ErrAlreadyClaimed
	}
	if c.Escrowed > 0 && token != c.Token {
		return 0, 0, ErrTokenMismatch
	}

	fee = l.CalculateFee(c.Raised)
	payout = c.Raised - fee
	escrowFee := l.CalculateFee(c.Escrowed)
	escrowPayout := c.Escrowed - escrowFee
	totalFees, ok := addUint64(l.state.TotalFees, escrowFee)
	if !ok {
		return 0, 0, ErrInvalidAmount
	}
	pool, ok := addUint64(l.state.FeePools[c.Token], escrowFee)
	if !ok {
		return 0, 0, ErrInvalidAmount
	}

	if escrowPayout > 0 {
		if err := l.tokens.Transfer(c.Token, escrowPayout, CustodyAccount, c.Owner); err != nil {
			return 0, 0, transferFailed(err)
		}
	}

	c.Claimed = true
	c.Escrowed = 0
	if escrowFee > 0 {
		l.state.TotalFees = totalFees
		l.state.FeePools[c.Token] = pool
	}
	l.emit(EventFundsClaimed, campaignID,
		attr("owner", c.Owner),
		attr("payout", u64(payout)),
		attr("fee", u64(fee)),
		attr("transferred", u64(escrowPayout)),
		attr("fee-accrued", u64(escrowFee)),
		attr("token", c.Token),
	)
	return payout, fee, nil
}

// RequestRefund settles the caller's whole donation once the campaign has
// expired without reaching its goal. The escrowed share is paid back in the
// campaign token; a registered share is only written off.
func (l *Ledger) RequestRefund(caller string, campaignID uint64, token string) (uint64, error) {
	c, ok := l.state.Campaigns[campaignID]
	if !ok {
		return 0, ErrCampaignNotFound
	}
	if !l.refundWindowOpen(c) {
		return 0, ErrRefundNotAvailable
	}
	d := l.donation(campaignID, caller)
	if d != nil && d.Refunded {
		return 0, ErrAlreadyRefunded
	}
	if d == nil || d.Amount == 0 {
		return 0, ErrInvalidAmount
	}
	// raised and escrowed always cover every non-refunded donation
	amount, escrowed := d.Amount, d.Escrowed()
	if c.Raised < amount || c.Escrowed < escrowed {
		return 0, ErrInvalidAmount
	}
	if escrowed > 0 && token != c.Token {
		return 0, ErrTokenMismatch
	}

	if escrowed > 0 {
		if err := l.tokens.Transfer(c.Token, escrowed, CustodyAccount, caller); err != nil {
			return 0, transferFailed(err)
		}
	}

	d.Refunded = true
	c.Raised -= amount
	c.Escrowed -= escrowed
	stats := l.refundStats(campaignID)
	stats.TotalRefunded += amount
	stats.RefundCount++

	l.emit(EventRefundIssued, campaignID,
		attr("donor", caller),
		attr("amount", u64(amount)),
		attr("transferred", u64(escrowed)),
		attr("new-total", u64(c.Raised)),
		attr("token", c.Token),
	)
	return amount, nil
}

// UpdateCampaignMetadata replaces the metadata reference. Only the owner may
// call it; it is allowed whether or not the campaign was claimed.
func (l *Ledger) UpdateCampaignMetadata(caller string, campaignID uint64, metadataRef string) error {
	c, ok := l.state.Campaigns[campaignID]
	if !ok {
		return ErrCampaignNotFound
	}
	if caller != c.Owner {
		return ErrNotOwner
	}
	if err := ValidateMetadataRef(metadataRef); err != nil {
		return err
	}

	c.MetadataRef = metadataRef
	l.emit(EventMetadataUpdated, campaignID, attr("metadata-ref", metadataRef))
	return nil
}

// WithdrawFees transfers the fee pool held in token to the platform admin.
// With a single escrow token this empties the whole pool.
func (l *Ledger) WithdrawFees(caller, token string) (uint64, error) {
	admin := l.state.Params.Admin
	if admin == "" || caller != admin {
		return 0, ErrUnauthorized
	}
	amount := l.state.FeePools[token]
	if amount == 0 {
		return 0, ErrInvalidAmount
	}

	if err := l.tokens.Transfer(token, amount, CustodyAccount, admin); err != nil {
		return 0, transferFailed(err)
	}

	delete(l.state.FeePools, token)
	l.state.TotalFees -= amount
	l.emit(EventFeesWithdrawn, 0,
		attr("admin", admin),
		attr("amount", u64(amount)),
		attr("token", token),
	)
	return amount, nil
}

// CalculateFee returns floor(amount * rate / 10000) without intermediate
// overflow.
func (l *Ledger) CalculateFee(amount uint64) uint64 {
	rate := l.state.Params.FeeRateBasisPoints
	if rate > basisPointsDenominator {
		rate = basisPointsDenominator
	}
	hi, lo := bits.Mul64(amount, rate)
	quo, _ := bits.Div64(hi, lo, basisPointsDenominator)
	return quo
}

// ValidateMetadataRef accepts 1..MaxMetadataRefLength bytes of printable
// ASCII. The ledger never dereferences the value.
func ValidateMetadataRef(ref string) error {
	if len(ref) == 0 || len(ref) > MaxMetadataRefLength {
		return ErrInvalidMetadata
	}
	for i := 0; i < len(ref); i++ {
		if ref[i] < 0x20 || ref[i] > 0x7e {
			return ErrInvalidMetadata
		}
	}
	return nil
}

func (l *Ledger) checkCredit(c *Campaign, donor string, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if _, ok := addUint64(c.Raised, amount); !ok {
		return ErrInvalidAmount
	}
	if d := l.donation(c.ID, donor); d != nil {
		if _, ok := addUint64(d.Amount, amount); !ok {
			return ErrInvalidAmount
		}
	}
	return nil
}

// credit applies a donation that already passed checkCredit and returns the
// donor's record.
func (l *Ledger) credit(c *Campaign, donor string, amount uint64) *Donation {
	c.Raised += amount

	byDonor, ok := l.state.Donations[c.ID]
	if !ok {
		byDonor = make(map[string]*Donation)
		l.state.Donations[c.ID] = byDonor
	}
	d, ok := byDonor[donor]
	if !ok {
		d = &Donation{}
		byDonor[donor] = d
		l.state.Backers[c.ID]++
	}
	d.Amount += amount
	return d
}

func (l *Ledger) donation(campaignID uint64, donor string) *Donation {
	byDonor, ok := l.state.Donations[campaignID]
	if !ok {
		return nil
	}
	return byDonor[donor]
}

func (l *Ledger) refundStats(campaignID uint64) *RefundStats {
	stats, ok := l.state.Refunds[campaignID]
	if !ok {
		stats = &RefundStats{}
		l.state.Refunds[campaignID] = stats
	}
	return stats
}

func (l *Ledger) refundWindowOpen(c *Campaign) bool {
	return c.RefundEnabled && l.height() > c.Deadline && c.Raised < c.Goal
}

func addUint64(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
