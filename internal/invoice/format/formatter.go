package format

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

// DefaultInvoiceNumberTemplate renders INV-000042.
const DefaultInvoiceNumberTemplate = "INV-{SEQ6}"

// FormatInvoiceNumber renders a display number from a template, the issue
// time and the allocated sequence value. It has no side effects.
func FormatInvoiceNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	out := template
	out = strings.ReplaceAll(out, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", issuedAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", issuedAt.Format("02"))
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}
	return out, nil
}

// ViewLink is the client-facing URL for an invoice.
func ViewLink(baseURL, invoiceID string) string {
	return strings.TrimRight(baseURL, "/") + "/?invoiceId=" + url.QueryEscape(invoiceID)
}

// PDFFilename builds a download name such as inv-000042-acme-ltd.pdf.
func PDFFilename(invoiceNumber, clientName string) string {
	name := slug.Make(invoiceNumber)
	if client := slug.Make(clientName); client != "" {
		name += "-" + client
	}
	if name == "" {
		name = "invoice"
	}
	return name + ".pdf"
}

// Money renders an amount with its currency code, e.g. "USD 1,250.00".
func Money(amount float64, currency string) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}
	raw := strconv.FormatFloat(amount, 'f', 2, 64)
	whole, frac, _ := strings.Cut(raw, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if negative {
		out = "-" + out
	}
	if currency = strings.TrimSpace(currency); currency != "" {
		out = currency + " " + out
	}
	return out
}
