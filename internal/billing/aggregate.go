package billing

// Read-only grouping and totalling over live order rows. Always computed
// from current rows, never cached; the diner table view and the staff
// dashboard share these so both present identical numbers.

// GroupByTable buckets orders by their table-bill identifier. Orders with no
// table land under the empty key.
func GroupByTable(orders []Order) map[string][]Order {
	groups := make(map[string][]Order)
	for _, o := range orders {
		key := ""
		if o.TableID != nil {
			key = *o.TableID
		}
		groups[key] = append(groups[key], o)
	}
	return groups
}

// GroupBySession buckets orders by session code, falling back to the
// table-bill identifier for sessionless (anonymous) orders.
func GroupBySession(orders []Order) map[string][]Order {
	groups := make(map[string][]Order)
	for _, o := range orders {
		key := ""
		switch {
		case o.SessionCode != nil && *o.SessionCode != "":
			key = *o.SessionCode
		case o.TableID != nil:
			key = *o.TableID
		}
		groups[key] = append(groups[key], o)
	}
	return groups
}

func Total(orders []Order) float64 {
	var sum float64
	for _, o := range orders {
		sum += o.TotalAmount
	}
	return sum
}

func ItemCount(orders []Order) int {
	count := 0
	for _, o := range orders {
		for _, item := range o.Items {
			count += int(item.Quantity)
		}
	}
	return count
}

// ItemsTotal is the authoritative order total at creation time:
// sum of price*quantity over the items. It is never recomputed afterwards.
func ItemsTotal(items []OrderItem) float64 {
	var sum float64
	for _, item := range items {
		sum += item.Price * float64(item.Quantity)
	}
	return sum
}
