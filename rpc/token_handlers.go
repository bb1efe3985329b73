package rpc

import (
	"encoding/json"

	"fundvault/native/token"
)

type createAssetParams struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Owner  string `json:"owner"`
	FeeBps uint32 `json:"feeBps"`
}

func (s *Server) handleTokenCreate(raw json.RawMessage) (interface{}, *handlerError) {
	var params createAssetParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	owner, herr := parseAddr("owner", params.Owner)
	if herr != nil {
		return nil, herr
	}
	created, err := s.tokens.CreateAsset(&token.Asset{
		Symbol: params.Symbol,
		Name:   params.Name,
		Owner:  owner,
		FeeBps: params.FeeBps,
	})
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]interface{}{
		"symbol": created.Symbol,
		"name":   created.Name,
		"feeBps": created.FeeBps,
	}, nil
}

type mintParams struct {
	Caller string `json:"caller"`
	Symbol string `json:"symbol"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTokenMint(raw json.RawMessage) (interface{}, *handlerError) {
	var params mintParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	caller, herr := parseAddr("caller", params.Caller)
	if herr != nil {
		return nil, herr
	}
	to, herr := parseAddr("to", params.To)
	if herr != nil {
		return nil, herr
	}
	amount, herr := parseAmount("amount", params.Amount)
	if herr != nil {
		return nil, herr
	}
	if err := s.tokens.Mint(caller, params.Symbol, to, amount); err != nil {
		return nil, domainError(err)
	}
	return map[string]bool{"minted": true}, nil
}

type approveParams struct {
	Owner   string `json:"owner"`
	Symbol  string `json:"symbol"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

func (s *Server) handleTokenApprove(raw json.RawMessage) (interface{}, *handlerError) {
	var params approveParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	owner, herr := parseAddr("owner", params.Owner)
	if herr != nil {
		return nil, herr
	}
	spender, herr := parseAddr("spender", params.Spender)
	if herr != nil {
		return nil, herr
	}
	amount, herr := parseAmount("amount", params.Amount)
	if herr != nil {
		return nil, herr
	}
	if err := s.tokens.Approve(owner, params.Symbol, spender, amount); err != nil {
		return nil, domainError(err)
	}
	return map[string]bool{"approved": true}, nil
}

type balanceParams struct {
	Symbol string `json:"symbol"`
	Owner  string `json:"owner"`
}

func (s *Server) handleTokenBalance(raw json.RawMessage) (interface{}, *handlerError) {
	var params balanceParams
	if herr := decodeParams(raw, &params); herr != nil {
		return nil, herr
	}
	owner, herr := parseAddr("owner", params.Owner)
	if herr != nil {
		return nil, herr
	}
	gateway, err := s.tokens.Asset(params.Symbol)
	if err != nil {
		return nil, domainError(err)
	}
	balance, err := gateway.BalanceOf(owner)
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]string{"balance": formatAmount(balance)}, nil
}
