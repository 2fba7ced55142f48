package types

type CreateCampaignPayload struct {
	MetadataRef string `json:"metadata_ref"`
	Goal        uint64 `json:"goal,string"`
	Duration    uint64 `json:"duration,string"`
}

type DonatePayload struct {
	CampaignID uint64 `json:"campaign_id"`
	Amount     uint64 `json:"amount,string"`
	Token      string `json:"token"`
}

// RegisterDepositPayload records value the owner received outside the chain
// on behalf of Donor.
type RegisterDepositPayload struct {
	CampaignID uint64 `json:"campaign_id"`
	Amount     uint64 `json:"amount,string"`
	Donor      string `json:"donor"`
}

type ClaimFundsPayload struct {
	CampaignID uint64 `json:"campaign_id"`
	Token      string `json:"token"`
}

type RequestRefundPayload struct {
	CampaignID uint64 `json:"campaign_id"`
	Token      string `json:"token"`
}

type UpdateMetadataPayload struct {
	CampaignID  uint64 `json:"campaign_id"`
	MetadataRef string `json:"metadata_ref"`
}

type WithdrawFeesPayload struct {
	Token string `json:"token"`
}
