package billing

import "time"

// BuildRollup merges every order under one table-bill identifier into a
// single archived bill. Pure: callers fetch the rows and persist the result.
// The session code and diner name are taken from the first order carrying
// them; items keep their source order id.
func BuildRollup(restaurantID, tableBillID, paymentMode string, orders []Order, now time.Time) (ArchivedBill, error) {
	if len(orders) == 0 {
		return ArchivedBill{}, ErrEmptyBill
	}

	bill := ArchivedBill{
		OriginalOrderIDs: make([]string, 0, len(orders)),
		RestaurantID:     restaurantID,
		TableID:          tableBillID,
		PaymentMode:      paymentMode,
		CreatedAt:        now,
		PrintedAt:        now,
	}

	for _, o := range orders {
		bill.OriginalOrderIDs = append(bill.OriginalOrderIDs, o.ID)
		bill.TotalAmount += o.TotalAmount
		if bill.SessionCode == nil && o.SessionCode != nil && *o.SessionCode != "" {
			bill.SessionCode = o.SessionCode
		}
		if bill.UserName == nil && o.UserName != nil && *o.UserName != "" {
			bill.UserName = o.UserName
		}
		for _, item := range o.Items {
			bill.Items = append(bill.Items, ArchivedItem{
				OrderID:     o.ID,
				ItemName:    item.ItemName,
				Quantity:    item.Quantity,
				Price:       item.Price,
				VariantName: item.VariantName,
			})
		}
	}

	return bill, nil
}
