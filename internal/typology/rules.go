package typology

// SignalRule is one weighted signal predicate, written as a CEL expression
// over the detection variables declared in NewDetector.
type SignalRule struct {
	Name   string
	Expr   string
	Weight float64
}

// Definition describes one typology: its weighted signal rules and the
// activation floor the accumulated confidence must reach before a match is
// emitted.
type Definition struct {
	Name        string
	Description string
	Floor       float64
	Signals     []SignalRule
}

// BuiltinDefinitions returns the static typology rule set. The tables are
// configuration data, not runtime-mutable; weights and floors are calibrated
// against labeled AML datasets and change only with a release.
func BuiltinDefinitions() []Definition {
	return []Definition{
		{
			Name:        "Structuring",
			Description: "Transactions just below reporting thresholds ($10K in US)",
			Floor:       0.4,
			Signals: []SignalRule{
				{"amount_near_10k_threshold", `amount >= 9000.0 && amount < 10000.0`, 0.4},
				{"amount_near_3k_threshold", `amount >= 2700.0 && amount < 3000.0`, 0.3},
				{"high_statistical_anomaly", `stat_score > 5.0`, 0.2},
				{"low_narrative_coherence", `narrative_score < 0.4`, 0.2},
				{"round_number_amount", `amount > 1000.0 && amount == double(int(amount)) && int(amount) % 100 == 0`, 0.1},
				{"high_transaction_frequency", `frequency_per_day > 3.0`, 0.15},
			},
		},
		{
			Name:        "Smurfing",
			Description: "Breaking large amounts into smaller deposits to avoid reporting thresholds",
			Floor:       0.4,
			Signals: []SignalRule{
				{"small_amount_high_frequency", `amount < 5000.0 && frequency_per_day > 2.0`, 0.35},
				{"many_counterparties", `unique_counterparties > 20`, 0.25},
				{"statistical_anomaly", `stat_score > 4.0`, 0.15},
				{"narrative_break", `narrative_score < 0.5`, 0.15},
				{"balanced_in_out", `total_sent > 0.0 && total_received > 0.0 && total_sent / total_received >= 0.8 && total_sent / total_received <= 1.2`, 0.1},
			},
		},
		{
			Name:        "Layering",
			Description: "Complex series of transactions to obscure money trail",
			Floor:       0.5,
			Signals: []SignalRule{
				{"very_high_frequency", `frequency_per_day > 5.0`, 0.3},
				{"high_transaction_count", `total_transactions > 100`, 0.2},
				{"in_equals_out", `total_sent > 0.0 && total_received > 0.0 && total_sent / total_received >= 0.9 && total_sent / total_received <= 1.1`, 0.25},
				{"high_statistical_anomaly", `stat_score > 6.0`, 0.15},
				{"very_low_coherence", `narrative_score < 0.3`, 0.2},
			},
		},
		{
			Name:        "Shell Company Activity",
			Description: "Using shell companies as passthrough entities",
			Floor:       0.4,
			Signals: []SignalRule{
				{"exact_passthrough", `total_sent > 0.0 && total_received > 0.0 && total_sent / total_received >= 0.95 && total_sent / total_received <= 1.05`, 0.35},
				{"limited_counterparties", `unique_counterparties < 5 && total_transactions > 20`, 0.2},
				{"high_value_low_frequency", `avg_amount > 50000.0 && frequency_per_day < 1.0`, 0.25},
				{"statistical_anomaly", `stat_score > 5.0`, 0.15},
			},
		},
		{
			Name:        "Trade-Based Money Laundering",
			Description: "Using trade transactions to move value (over/under invoicing)",
			Floor:       0.5,
			Signals: []SignalRule{
				{"high_value_transaction", `amount > 100000.0`, 0.2},
				{"high_amount_variance", `std_amount > avg_amount`, 0.25},
				{"wire_transfer", `payment_format == "Wire"`, 0.1},
				{"extreme_statistical_anomaly", `stat_score > 7.0`, 0.25},
				{"narrative_break", `narrative_score < 0.4`, 0.2},
			},
		},
	}
}
