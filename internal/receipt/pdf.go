// Package receipt renders archived bills as printable PDFs. The raw-socket
// printer transport and SMS delivery consume these through the notification
// gateway; this package only produces the document.
package receipt

import (
	"bytes"
	"fmt"
	"time"

	"tabletab-order-services/internal/billing"

	"github.com/phpdave11/gofpdf"
)

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// Render produces the receipt PDF for an archived bill.
func Render(bill billing.ArchivedBill, restaurantName string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(12, 12, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	if restaurantName == "" {
		restaurantName = "Table Bill"
	}
	pdf.CellFormat(0, 8, restaurantName, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 5, fmt.Sprintf("Table %s", bill.TableID), "", 1, "C", false, 0, "")
	if bill.SessionCode != nil && *bill.SessionCode != "" {
		pdf.CellFormat(0, 5, fmt.Sprintf("Bill session %s", *bill.SessionCode), "", 1, "C", false, 0, "")
	}
	if bill.UserName != nil && *bill.UserName != "" {
		pdf.CellFormat(0, 5, *bill.UserName, "", 1, "C", false, 0, "")
	}
	pdf.CellFormat(0, 5, fmt.Sprintf("Printed: %s", bill.PrintedAt.Format(time.RFC1123)), "", 1, "C", false, 0, "")

	pdf.Ln(3)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, "Items", "B", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	for _, item := range bill.Items {
		name := item.ItemName
		if item.VariantName != nil && *item.VariantName != "" {
			name = fmt.Sprintf("%s (%s)", name, *item.VariantName)
		}
		pdf.CellFormat(130, 5, fmt.Sprintf("%dx %s", item.Quantity, name), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 5, formatAmount(item.Price*float64(item.Quantity)), "", 1, "R", false, 0, "")
	}

	pdf.Ln(2)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(130, 6, "Total", "T", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, formatAmount(bill.TotalAmount), "T", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Payment: %s", bill.PaymentMode), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Orders merged: %d", len(bill.OriginalOrderIDs)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Bill %s", bill.ID), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
