package service

import (
	"sync"

	"market_go/internal/domain"
)

// ViewState is what a RemoteView currently shows.
type ViewState struct {
	Offers []*domain.LiveOffer `json:"offers"`
	Trades []domain.TradeState `json:"trades,omitempty"`
	Closed bool                `json:"closed"`
}

// RemoteView is a View held on the server for a viewer connected over the API.
// onChange, if set, is called after every render and close.
type RemoteView struct {
	mu       sync.Mutex
	state    ViewState
	onChange func(ViewState)
}

// NewRemoteView creates an empty view.
func NewRemoteView(onChange func(ViewState)) *RemoteView {
	return &RemoteView{onChange: onChange}
}

func (v *RemoteView) Render(offers []*domain.LiveOffer, trades []domain.TradeState) {
	v.mu.Lock()
	v.state.Offers = offers
	v.state.Trades = domain.CloneTrades(trades)
	st := v.snapshotLocked()
	v.mu.Unlock()
	v.notify(st)
}

func (v *RemoteView) Trades() ([]domain.TradeState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.Trades == nil {
		return nil, false
	}
	return domain.CloneTrades(v.state.Trades), true
}

func (v *RemoteView) Close() {
	v.mu.Lock()
	v.state.Closed = true
	st := v.snapshotLocked()
	v.mu.Unlock()
	v.notify(st)
}

// RecordTradeUse marks one use of the trade at position.
func (v *RemoteView) RecordTradeUse(position int) {
	v.mu.Lock()
	for i := range v.state.Trades {
		if v.state.Trades[i].Position == position {
			v.state.Trades[i].Uses++
			break
		}
	}
	st := v.snapshotLocked()
	v.mu.Unlock()
	v.notify(st)
}

// State returns a copy of what the view shows.
func (v *RemoteView) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *RemoteView) snapshotLocked() ViewState {
	return ViewState{
		Offers: append([]*domain.LiveOffer(nil), v.state.Offers...),
		Trades: domain.CloneTrades(v.state.Trades),
		Closed: v.state.Closed,
	}
}

func (v *RemoteView) notify(st ViewState) {
	if v.onChange != nil {
		v.onChange(st)
	}
}
