package rpc

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"fundvault/native/campaign"
)

// Wire DTOs. Amounts travel as base-10 strings so callers never lose
// precision to JSON number handling.

type milestoneSpec struct {
	Description string `json:"description"`
	Payout      string `json:"payout"`
}

type saleSpec struct {
	Price            string `json:"price"`
	CreatorShareBps  uint32 `json:"creatorShareBps"`
	BackerShareBps   uint32 `json:"backerShareBps"`
	PlatformShareBps uint32 `json:"platformShareBps"`
	PlatformWallet   string `json:"platformWallet,omitempty"`
}

type milestoneResult struct {
	Index          int    `json:"index"`
	Description    string `json:"description"`
	Payout         string `json:"payout"`
	Released       bool   `json:"released"`
	ApprovalWeight string `json:"approvalWeight"`
}

type saleResult struct {
	Price            string `json:"price"`
	CreatorShareBps  uint32 `json:"creatorShareBps"`
	BackerShareBps   uint32 `json:"backerShareBps"`
	PlatformShareBps uint32 `json:"platformShareBps"`
	PlatformWallet   string `json:"platformWallet,omitempty"`
}

type campaignResult struct {
	ID             string            `json:"id"`
	Creator        string            `json:"creator"`
	Vault          string            `json:"vault"`
	Asset          string            `json:"asset"`
	Goal           string            `json:"goal"`
	Deadline       string            `json:"deadline"`
	CreatedAt      string            `json:"createdAt"`
	State          string            `json:"state"`
	TotalPledged   string            `json:"totalPledged"`
	FundsClaimed   bool              `json:"fundsClaimed"`
	Milestones     []milestoneResult `json:"milestones"`
	Sale           *saleResult       `json:"sale,omitempty"`
	BackerPool     string            `json:"backerPool"`
	BackerPaidOut  string            `json:"backerPaidOut"`
	PlatformOwed   string            `json:"platformOwed"`
}

type backerResult struct {
	Campaign    string `json:"campaign"`
	Backer      string `json:"backer"`
	Contributed string `json:"contributed"`
	Withdrawn   string `json:"withdrawn"`
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatTime(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func campaignToResult(c *campaign.Campaign) campaignResult {
	out := campaignResult{
		ID:            campaign.FormatID(c.ID),
		Creator:       campaign.FormatAddress(c.Creator),
		Vault:         campaign.FormatAddress(c.Vault),
		Asset:         c.Asset,
		Goal:          formatAmount(c.Goal),
		Deadline:      formatTime(c.Deadline),
		CreatedAt:     formatTime(c.CreatedAt),
		State:         c.State.String(),
		TotalPledged:  formatAmount(c.TotalPledged),
		FundsClaimed:  c.FundsClaimed,
		BackerPool:    formatAmount(c.Pool.TotalBackerPool),
		BackerPaidOut: formatAmount(c.Pool.BackerPaidOut),
		PlatformOwed:  formatAmount(c.PlatformOwed),
	}
	for i, m := range c.Milestones {
		out.Milestones = append(out.Milestones, milestoneResult{
			Index:          i,
			Description:    m.Description,
			Payout:         formatAmount(m.Payout),
			Released:       m.Released,
			ApprovalWeight: formatAmount(m.ApprovalWeight),
		})
	}
	if c.Sale != nil {
		out.Sale = &saleResult{
			Price:            formatAmount(c.Sale.Price),
			CreatorShareBps:  c.Sale.CreatorShareBps,
			BackerShareBps:   c.Sale.BackerShareBps,
			PlatformShareBps: c.Sale.PlatformShareBps,
		}
		var zero [20]byte
		if c.Sale.PlatformWallet != zero {
			out.Sale.PlatformWallet = campaign.FormatAddress(c.Sale.PlatformWallet)
		}
	}
	return out
}

func parseAmount(field, raw string) (*big.Int, *handlerError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, invalidParams(fmt.Sprintf("%s is required", field), nil)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, invalidParams(fmt.Sprintf("%s must be a non-negative base-10 integer", field), raw)
	}
	return value, nil
}

func parseAddr(field, raw string) ([20]byte, *handlerError) {
	addr, err := campaign.ParseAddress(raw)
	if err != nil {
		return [20]byte{}, invalidParams(fmt.Sprintf("invalid %s", field), err.Error())
	}
	return addr, nil
}

func parseCampaignID(raw string) ([32]byte, *handlerError) {
	id, err := campaign.ParseID(raw)
	if err != nil {
		return [32]byte{}, invalidParams("invalid campaign id", err.Error())
	}
	return id, nil
}
