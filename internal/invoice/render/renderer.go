// Package render produces downloadable invoice documents.
package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Nikjeremic/uptiomio/internal/invoice/domain"
	"github.com/Nikjeremic/uptiomio/internal/invoice/format"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type Renderer interface {
	// RenderPDF returns the document bytes and a suggested filename.
	RenderPDF(ctx context.Context, inv domain.Invoice) ([]byte, string, error)
}

type PDFRenderer struct{}

func NewRenderer() Renderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) RenderPDF(ctx context.Context, inv domain.Invoice) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	status := "UNPAID"
	if inv.IsPaid {
		status = "PAID"
	}
	m.AddRow(12,
		text.NewCol(8, "Invoice "+inv.InvoiceNumberStr, props.Text{Size: 18, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, status, props.Text{Size: 14, Style: fontstyle.Bold, Align: align.Right}),
	)

	meta := []string{"Date of issue: " + formatDate(inv.CreatedAt)}
	if inv.DueDate != nil {
		meta = append(meta, "Date due: "+formatDate(*inv.DueDate))
	}
	if inv.IsPaid && inv.PaidAt != nil {
		paid := "Paid on: " + formatDate(*inv.PaidAt)
		if inv.PaymentMethod != nil {
			paid += " via " + string(*inv.PaymentMethod)
		}
		meta = append(meta, paid)
	}
	m.AddRow(16, col.New(12).Add(stacked(meta, 9)...))

	m.AddRow(36,
		col.New(6).Add(stacked(party("From", inv.Issuer.Name, inv.Issuer.Company, inv.Issuer.Address, inv.Issuer.Country, inv.Issuer.Phone), 9)...),
		col.New(6).Add(stacked(party("Bill to", inv.Client.Name, inv.Client.Company, inv.Client.Address, inv.Client.Country, inv.Client.Email), 9)...),
	)

	m.AddRow(8,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, item := range inv.Items {
		m.AddRow(8,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, trimFloat(item.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, format.Money(item.UnitPrice, ""), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, format.Money(domain.RoundCents(item.Quantity*item.UnitPrice), ""), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 10}),
		text.NewCol(2, format.Money(inv.Amount, inv.Currency), props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)

	if bank := bankDetails(inv.Issuer); bank != "" {
		m.AddRow(14, text.NewCol(12, bank, props.Text{Size: 8, Top: 4}))
	}
	if notes := strings.TrimSpace(inv.Notes); notes != "" {
		m.AddRow(14, text.NewCol(12, notes, props.Text{Size: 8, Top: 4}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, "", fmt.Errorf("generate invoice pdf: %w", err)
	}
	return doc.GetBytes(), format.PDFFilename(inv.InvoiceNumberStr, inv.Client.Name), nil
}

func stacked(lines []string, size float64) []core.Component {
	out := make([]core.Component, 0, len(lines))
	for i, line := range lines {
		style := fontstyle.Normal
		if i == 0 {
			style = fontstyle.Bold
		}
		out = append(out, text.New(line, props.Text{Size: size, Top: float64(i) * 4.5, Style: style}))
	}
	return out
}

func party(title string, fields ...string) []string {
	lines := []string{title}
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			lines = append(lines, f)
		}
	}
	return lines
}

func bankDetails(issuer domain.IssuerSnapshot) string {
	var parts []string
	if issuer.IBAN != "" {
		parts = append(parts, "IBAN: "+issuer.IBAN)
	}
	if issuer.SwiftCode != "" {
		parts = append(parts, "SWIFT: "+issuer.SwiftCode)
	}
	if issuer.CardNumber != "" {
		parts = append(parts, "Card: "+issuer.CardNumber)
	}
	return strings.Join(parts, "   ")
}

func formatDate(t time.Time) string {
	return t.Format("Jan 2, 2006")
}

func trimFloat(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
