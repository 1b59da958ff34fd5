package engine

// Fees is the estimated cost of one order.
type Fees struct {
	Turnover    float64 `json:"turnover_fees"`
	GSTOnBroker float64 `json:"gst_on_broker"`
	Total       float64 `json:"total_fees"`
}

// EstimateFees prices an order of the given notional: a flat commission,
// GST on that commission and a turnover charge on the notional.
func EstimateFees(notional, commission, turnoverPct, gstPct float64) Fees {
	turnover := notional * turnoverPct
	gst := commission * gstPct
	return Fees{
		Turnover:    turnover,
		GSTOnBroker: gst,
		Total:       commission + gst + turnover,
	}
}
