package domain

import (
	invoicedomain "github.com/Nikjeremic/uptiomio/internal/invoice/domain"
	"github.com/Nikjeremic/uptiomio/internal/invoice/format"
)

// InvoiceData fills the per-invoice template fields, including the view link.
func InvoiceData(inv invoicedomain.Invoice, baseURL string) Data {
	id := inv.ID.String()
	return Data{
		RecipientName: inv.Client.Name,
		IssuerName:    firstNonEmpty(inv.Issuer.Company, inv.Issuer.Name),
		InvoiceID:     id,
		InvoiceNumber: inv.InvoiceNumberStr,
		Amount:        inv.Amount,
		Currency:      inv.Currency,
		DueDate:       inv.DueDate,
		Link:          format.ViewLink(baseURL, id),
		ClientName:    inv.Client.Name,
		ClientEmail:   inv.Client.Email,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
