package bridge

import (
	"context"

	"github.com/pkg/errors"

	"github.com/wingzero/mt5bridge/internal/domain"
	"github.com/wingzero/mt5bridge/internal/journal"
	"github.com/wingzero/mt5bridge/internal/terminal"
)

// Trade gateway: translates domain trade intents into venue deal
// requests and interprets return codes. The open and close paths both
// resolve a live price when needed and both funnel through the single
// submitDeal primitive.

func (b *Bridge) placeOrder(ctx context.Context, req *domain.TradeRequest) (*domain.TradeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.Wrap(domain.ErrInvalidRequest, err.Error())
	}

	// No explicit price: execute at the current quote, ask for a buy
	// and bid for a sell.
	var price float64
	if req.Price != nil {
		price = *req.Price
	} else {
		tick, err := b.fetchTick(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
		if req.Side == domain.SideBuy {
			price = tick.Ask
		} else {
			price = tick.Bid
		}
	}

	comment := req.Comment
	if comment == "" {
		comment = b.cfg.Comment
	}

	deal := &terminal.DealRequest{
		Action:     terminal.TradeActionDeal,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		Price:      price,
		Comment:    comment,
		TimePolicy: terminal.OrderTimeGTC,
		FillPolicy: terminal.OrderFillingIOC,
	}
	if req.StopLoss != nil {
		deal.StopLoss = *req.StopLoss
	}
	if req.TakeProfit != nil {
		deal.TakeProfit = *req.TakeProfit
	}

	return b.submitDeal(ctx, deal)
}

func (b *Bridge) closePosition(ctx context.Context, ticket uint64) (*domain.TradeResult, error) {
	positions, err := b.refreshPositions(ctx)
	if err != nil {
		return nil, err
	}
	var pos *domain.PositionRecord
	for i := range positions {
		if positions[i].Ticket == ticket {
			pos = &positions[i]
			break
		}
	}
	if pos == nil {
		return nil, errors.Wrapf(domain.ErrPositionNotFound, "ticket %d", ticket)
	}

	// Flatten with the opposite side: a long closes at the bid, a short
	// at the ask.
	closeSide := pos.Side.Opposite()
	tick, err := b.fetchTick(ctx, pos.Symbol)
	if err != nil {
		return nil, err
	}
	price := tick.Ask
	if closeSide == domain.SideSell {
		price = tick.Bid
	}

	deal := &terminal.DealRequest{
		Action:     terminal.TradeActionDeal,
		Symbol:     pos.Symbol,
		Side:       closeSide,
		Volume:     pos.Volume,
		Price:      price,
		Position:   ticket,
		Comment:    b.cfg.Comment + " close",
		TimePolicy: terminal.OrderTimeGTC,
		FillPolicy: terminal.OrderFillingIOC,
	}
	return b.submitDeal(ctx, deal)
}

// submitDeal is the one place deals reach the terminal. It serializes
// against every other driver call, journals the outcome and maps a
// non-success retcode to TradeRejectedError with the venue's comment.
func (b *Bridge) submitDeal(ctx context.Context, deal *terminal.DealRequest) (*domain.TradeResult, error) {
	var res *terminal.DealResult
	err := b.withSession(ctx, func(cctx context.Context) error {
		var serr error
		res, serr = b.session.SubmitDeal(cctx, deal)
		return serr
	})

	b.journalDeal(ctx, deal, res, err)

	if err != nil {
		return nil, errors.Wrap(err, "order_send")
	}
	if res.Retcode != terminal.RetcodeDone {
		return nil, &domain.TradeRejectedError{Retcode: res.Retcode, Comment: res.Comment}
	}
	log.Infof("deal executed: %s %s %.2f @ %.5f order=%d", deal.Side, deal.Symbol, deal.Volume, deal.Price, res.OrderID)
	return &domain.TradeResult{OrderID: res.OrderID, Retcode: res.Retcode, Comment: res.Comment}, nil
}

// journalDeal records the submission best-effort; a journal failure
// never fails the trade.
func (b *Bridge) journalDeal(ctx context.Context, deal *terminal.DealRequest, res *terminal.DealResult, submitErr error) {
	if b.journal == nil {
		return
	}
	rec := journal.DealRecord{
		Symbol:   deal.Symbol,
		Side:     string(deal.Side),
		Volume:   deal.Volume,
		Price:    deal.Price,
		Position: deal.Position,
	}
	switch {
	case submitErr != nil:
		rec.Status = "error"
		rec.Comment = submitErr.Error()
	case res.Retcode != terminal.RetcodeDone:
		rec.Status = "rejected"
		rec.Retcode = res.Retcode
		rec.Comment = res.Comment
	default:
		rec.Status = "executed"
		rec.Retcode = res.Retcode
		rec.OrderID = res.OrderID
		rec.Comment = res.Comment
	}
	if err := b.journal.RecordDeal(ctx, rec); err != nil {
		log.Warnf("journal write failed: %v", err)
	}
}
