package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"greennets/backend/internal/domain"
	"greennets/backend/internal/invoice"
	"greennets/backend/internal/store"
)

type InvoiceFile struct {
	Filename string
	invoice.Payload
}

// Invoice renders the bill for an offline sale (by id or bill number) or,
// failing that, an online order. Customers can only fetch their own orders.
func (s *Service) Invoice(ctx context.Context, id string) (InvoiceFile, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return InvoiceFile{}, err
	}
	id = strings.TrimSpace(id)

	var doc invoice.Document
	sale, err := s.repo.GetOfflineSale(ctx, id)
	switch {
	case err == nil && actor.Role == domain.RoleAdmin:
		doc = invoice.FromOfflineSale(s.opts.Shop, *sale, s.opts.Location)
	case err == nil || errors.Is(err, store.ErrNotFound):
		order, err := s.GetOrder(ctx, id)
		if err != nil {
			return InvoiceFile{}, err
		}
		doc = invoice.FromOrder(s.opts.Shop, order, s.opts.Location)
	default:
		return InvoiceFile{}, err
	}

	html, err := invoice.HTML(doc)
	if err != nil {
		return InvoiceFile{}, err
	}
	payload, err := s.renderer.Render(ctx, html)
	if err != nil {
		return InvoiceFile{}, fmt.Errorf("render invoice %s: %w", doc.BillNumber, err)
	}

	ext := ".html"
	if strings.HasPrefix(payload.ContentType, "application/pdf") {
		ext = ".pdf"
	}
	return InvoiceFile{Filename: "invoice-" + doc.BillNumber + ext, Payload: payload}, nil
}
