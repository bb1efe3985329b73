package rpc

import (
	"encoding/json"
	"math/big"
	"time"

	"fundvault/native/campaign"
)

func decodeParams(raw json.RawMessage, into interface{}) *handlerError {
	if len(raw) == 0 {
		return invalidParams("params object required", nil)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return invalidParams("malformed params", err.Error())
	}
	return nil
}

type createCampaignParams struct {
	Creator    string          `json:"creator"`
	Asset      string          `json:"asset"`
	Goal       string          `json:"goal"`
	Deadline   string          `json:"deadline"`
	Milestones []milestoneSpec `json:"milestones"`
	Salt       string          `json:"salt"`
}

func (s *Server) handleCampaignCreate(raw json.RawMessage) (interface{}, *handlerError) {
	var params createCampaignParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	creator, herr := parseAddr("creator", params.Creator)
	if herr != nil {
		return nil, herr
	}
	goal, herr := parseAmount("goal", params.Goal)
	if herr != nil {
		return nil, herr
	}
	deadline, err := time.Parse(time.RFC3339, params.Deadline)
	if err != nil {
		return nil, invalidParams("deadline must be RFC3339", err.Error())
	}
	salt, herr := parseCampaignID(params.Salt)
	if herr != nil {
		return nil, invalidParams("invalid salt", params.Salt)
	}
	milestones := make([]*campaign.Milestone, 0, len(params.Milestones))
	for _, spec := range params.Milestones {
		payout, herr := parseAmount("milestone payout", spec.Payout)
		if herr != nil {
			return nil, herr
		}
		milestones = append(milestones, &campaign.Milestone{
			Description: spec.Description,
			Payout:      payout,
		})
	}
	created, err := s.registry.CreateCampaign(campaign.CreateParams{
		Creator:    creator,
		Asset:      params.Asset,
		Goal:       goal,
		Deadline:   deadline.Unix(),
		Milestones: milestones,
		Salt:       salt,
	})
	if err != nil {
		return nil, domainError(err)
	}
	return campaignToResult(created), nil
}

type pledgeParams struct {
	Campaign string `json:"campaign"`
	Backer   string `json:"backer"`
	Amount   string `json:"amount"`
}

func (s *Server) handleCampaignPledge(raw json.RawMessage) (interface{}, *handlerError) {
	var params pledgeParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	id, herr := parseCampaignID(params.Campaign)
	if herr != nil {
		return nil, herr
	}
	backer, herr := parseAddr("backer", params.Backer)
	if herr != nil {
		return nil, herr
	}
	amount, herr := parseAmount("amount", params.Amount)
	if herr != nil {
		return nil, herr
	}
	received, err := s.registry.Pledge(id, backer, amount)
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]string{"received": formatAmount(received)}, nil
}

type voteParams struct {
	Campaign  string `json:"campaign"`
	Voter     string `json:"voter"`
	Milestone int    `json:"milestone"`
}

func (s *Server) handleCampaignVote(raw json.RawMessage) (interface{}, *handlerError) {
	var params voteParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	id, herr := parseCampaignID(params.Campaign)
	if herr != nil {
		return nil, herr
	}
	voter, herr := parseAddr("voter", params.Voter)
	if herr != nil {
		return nil, herr
	}
	weight, err := s.registry.Vote(id, voter, params.Milestone)
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]string{"weight": formatAmount(weight)}, nil
}

type releaseParams struct {
	Campaign  string `json:"campaign"`
	Caller    string `json:"caller"`
	Milestone int    `json:"milestone"`
}

func (s *Server) handleCampaignRelease(raw json.RawMessage) (interface{}, *handlerError) {
	var params releaseParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	id, herr := parseCampaignID(params.Campaign)
	if herr != nil {
		return nil, herr
	}
	caller, herr := parseAddr("caller", params.Caller)
	if herr != nil {
		return nil, herr
	}
	payout, err := s.registry.Release(id, caller, params.Milestone)
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]string{"payout": formatAmount(payout)}, nil
}

type callerParams struct {
	Campaign string `json:"campaign"`
	Caller   string `json:"caller"`
}

func (s *Server) callerOp(raw json.RawMessage, op func([32]byte, [20]byte) (*big.Int, error), field string) (interface{}, *handlerError) {
	var params callerParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	id, herr := parseCampaignID(params.Campaign)
	if herr != nil {
		return nil, herr
	}
	caller, herr := parseAddr("caller", params.Caller)
	if herr != nil {
		return nil, herr
	}
	amount, err := op(id, caller)
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]string{field: formatAmount(amount)}, nil
}

func (s *Server) handleCampaignClaimFunds(raw json.RawMessage) (interface{}, *handlerError) {
	return s.callerOp(raw, s.registry.ClaimFunds, "claimed")
}

func (s *Server) handleCampaignClaimRefund(raw json.RawMessage) (interface{}, *handlerError) {
	return s.callerOp(raw, s.registry.ClaimRefund, "refunded")
}

func (s *Server) handleCampaignWithdrawRevenue(raw json.RawMessage) (interface{}, *handlerError) {
	return s.callerOp(raw, s.registry.WithdrawBackerRevenue, "withdrawn")
}

type setCourseSaleParams struct {
	Campaign string   `json:"campaign"`
	Caller   string   `json:"caller"`
	Sale     saleSpec `json:"sale"`
}

func (s *Server) handleCampaignSetCourseSale(raw json.RawMessage) (interface{}, *handlerError) {
	var params setCourseSaleParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	id, herr := parseCampaignID(params.Campaign)
	if herr != nil {
		return nil, herr
	}
	caller, herr := parseAddr("caller", params.Caller)
	if herr != nil {
		return nil, herr
	}
	price, herr := parseAmount("sale price", params.Sale.Price)
	if herr != nil {
		return nil, herr
	}
	sale := &campaign.SaleParams{
		Price:            price,
		CreatorShareBps:  params.Sale.CreatorShareBps,
		BackerShareBps:   params.Sale.BackerShareBps,
		PlatformShareBps: params.Sale.PlatformShareBps,
	}
	if params.Sale.PlatformWallet != "" {
		wallet, herr := parseAddr("platform wallet", params.Sale.PlatformWallet)
		if herr != nil {
			return nil, herr
		}
		sale.PlatformWallet = wallet
	}
	if err := s.registry.SetCourseSale(id, caller, sale); err != nil {
		return nil, domainError(err)
	}
	return map[string]bool{"configured": true}, nil
}

type purchaseParams struct {
	Campaign string `json:"campaign"`
	Buyer    string `json:"buyer"`
}

func (s *Server) handleCampaignPurchase(raw json.RawMessage) (interface{}, *handlerError) {
	var params purchaseParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	id, herr := parseCampaignID(params.Campaign)
	if herr != nil {
		return nil, herr
	}
	buyer, herr := parseAddr("buyer", params.Buyer)
	if herr != nil {
		return nil, herr
	}
	receipt, err := s.registry.Purchase(id, buyer)
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]uint64{"receipt": receipt}, nil
}

type campaignIDParams struct {
	Campaign string `json:"campaign"`
}

func (s *Server) handleCampaignCheckStatus(raw json.RawMessage) (interface{}, *handlerError) {
	var params campaignIDParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	id, herr := parseCampaignID(params.Campaign)
	if herr != nil {
		return nil, herr
	}
	state, err := s.registry.CheckStatus(id)
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]string{"state": state.String()}, nil
}

func (s *Server) handleCampaignGet(raw json.RawMessage) (interface{}, *handlerError) {
	var params campaignIDParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	id, herr := parseCampaignID(params.Campaign)
	if herr != nil {
		return nil, herr
	}
	c, err := s.registry.Get(id)
	if err != nil {
		return nil, domainError(err)
	}
	return campaignToResult(c), nil
}

func (s *Server) handleCampaignMilestones(raw json.RawMessage) (interface{}, *handlerError) {
	var params campaignIDParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	id, herr := parseCampaignID(params.Campaign)
	if herr != nil {
		return nil, herr
	}
	c, err := s.registry.Get(id)
	if err != nil {
		return nil, domainError(err)
	}
	out := make([]milestoneResult, 0, len(c.Milestones))
	for i, m := range c.Milestones {
		out = append(out, milestoneResult{
			Index:          i,
			Description:    m.Description,
			Payout:         formatAmount(m.Payout),
			Released:       m.Released,
			ApprovalWeight: formatAmount(m.ApprovalWeight),
		})
	}
	return out, nil
}

type backerParams struct {
	Campaign string `json:"campaign"`
	Backer   string `json:"backer"`
}

func (s *Server) handleCampaignBacker(raw json.RawMessage) (interface{}, *handlerError) {
	var params backerParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	id, herr := parseCampaignID(params.Campaign)
	if herr != nil {
		return nil, herr
	}
	backer, herr := parseAddr("backer", params.Backer)
	if herr != nil {
		return nil, herr
	}
	contributed, err := s.registry.Contribution(id, backer)
	if err != nil {
		return nil, domainError(err)
	}
	withdrawn, err := s.registry.Withdrawn(id, backer)
	if err != nil {
		return nil, domainError(err)
	}
	return backerResult{
		Campaign:    params.Campaign,
		Backer:      campaign.FormatAddress(backer),
		Contributed: formatAmount(contributed),
		Withdrawn:   formatAmount(withdrawn),
	}, nil
}

type allowAssetParams struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
}

func (s *Server) handleAdminAllowAsset(raw json.RawMessage) (interface{}, *handlerError) {
	var params allowAssetParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	caller, herr := parseAddr("caller", params.Caller)
	if herr != nil {
		return nil, herr
	}
	if err := s.registry.AllowAsset(caller, params.Asset); err != nil {
		return nil, domainError(err)
	}
	return map[string]bool{"allowed": true}, nil
}

type setPlatformWalletParams struct {
	Caller string `json:"caller"`
	Wallet string `json:"wallet"`
}

func (s *Server) handleAdminSetPlatformWallet(raw json.RawMessage) (interface{}, *handlerError) {
	var params setPlatformWalletParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	caller, herr := parseAddr("caller", params.Caller)
	if herr != nil {
		return nil, herr
	}
	wallet, herr := parseAddr("wallet", params.Wallet)
	if herr != nil {
		return nil, herr
	}
	if err := s.registry.SetPlatformWallet(caller, wallet); err != nil {
		return nil, domainError(err)
	}
	return map[string]bool{"updated": true}, nil
}

type setPlatformShareParams struct {
	Caller string `json:"caller"`
	Bps    uint32 `json:"bps"`
}

func (s *Server) handleAdminSetPlatformShare(raw json.RawMessage) (interface{}, *handlerError) {
	var params setPlatformShareParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	caller, herr := parseAddr("caller", params.Caller)
	if herr != nil {
		return nil, herr
	}
	if err := s.registry.SetPlatformShare(caller, params.Bps); err != nil {
		return nil, domainError(err)
	}
	return map[string]bool{"updated": true}, nil
}
