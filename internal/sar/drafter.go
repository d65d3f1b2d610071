// Package sar assembles Suspicious Activity Report drafts for flagged
// transactions.
package sar

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Drafter builds SAR drafts from adjudication evidence. Assembly is
// deterministic: the same evidence always produces the same draft.
type Drafter struct {
	filingInstitution string
}

// NewDrafter creates a Drafter that files under the given institution name.
func NewDrafter(filingInstitution string) *Drafter {
	if filingInstitution == "" {
		filingInstitution = "Kestrel"
	}
	return &Drafter{filingInstitution: filingInstitution}
}

// Draft assembles a SAR draft for one adjudicated transaction. The
// reasoning text is included verbatim; no PII beyond the account
// identifier appears in the draft.
func (d *Drafter) Draft(input *domain.AdjudicationInput, primary *domain.TypologyMatch, riskFactors []domain.RiskFactor, reasoning string) *domain.SARDraft {
	tx := &input.Transaction
	stats := &input.AccountHistory.Stats

	activityType := "Unusual Activity"
	if primary != nil {
		activityType = primary.Name
	}

	redFlags := make([]string, 0, len(riskFactors))
	for _, f := range riskFactors {
		redFlags = append(redFlags, fmt.Sprintf("%s: %s", f.Factor, f.Description))
	}
	if primary != nil {
		for _, s := range primary.SignalsMatched {
			redFlags = append(redFlags, "Signal: "+s)
		}
	}

	var txIDs []string
	if tx.ID != "" {
		txIDs = []string{tx.ID}
	}

	return &domain.SARDraft{
		SubjectAccount:       input.AccountHistory.AccountID,
		FilingInstitution:    d.filingInstitution,
		ActivityType:         activityType,
		ActivityDateStart:    stats.FirstTransaction,
		ActivityDateEnd:      tx.Timestamp,
		TotalAmountInvolved:  stats.TotalSent + tx.AmountSent(),
		Summary:              d.summary(input, primary, riskFactors),
		DetailedDescription:  d.detailedDescription(input, primary, riskFactors, reasoning),
		TransactionIDs:       txIDs,
		RedFlags:             redFlags,
		RegulatoryReferences: ReferencesFor(activityType),
		RecommendedAction:    RecommendAction(primary, riskFactors),
	}
}

// RecommendAction selects the compliance follow-up. Rules are evaluated in
// order; the first match wins.
func RecommendAction(primary *domain.TypologyMatch, riskFactors []domain.RiskFactor) domain.RecommendedAction {
	if primary != nil && primary.Confidence > 0.7 {
		return domain.ActionFileSAR
	}
	for _, f := range riskFactors {
		if f.Severity == domain.SeverityCritical {
			return domain.ActionFileSAR
		}
	}
	if len(riskFactors) >= 3 {
		return domain.ActionEscalateToCompliance
	}
	return domain.ActionEnhancedMonitoring
}

// ReferencesFor returns the regulatory citations for an activity type.
// The FATF suspicious-transaction reporting recommendation always applies;
// typology-specific references are selected by name or substring.
func ReferencesFor(activityType string) []domain.RegulatoryReference {
	refs := []domain.RegulatoryReference{
		{Source: "FATF", Reference: "Recommendation 20", Relevance: "Reporting of suspicious transactions"},
	}

	switch {
	case activityType == "Structuring":
		refs = append(refs,
			domain.RegulatoryReference{Source: "FinCEN", Reference: "31 CFR 1010.314", Relevance: "Structuring transactions to evade reporting requirements"},
			domain.RegulatoryReference{Source: "FATF", Reference: "Recommendation 10", Relevance: "Customer due diligence for suspicious patterns"},
		)
	case activityType == "Smurfing":
		refs = append(refs,
			domain.RegulatoryReference{Source: "FATF", Reference: "Recommendation 10", Relevance: "Customer due diligence and ongoing monitoring"},
			domain.RegulatoryReference{Source: "EU AMLD6", Reference: "Article 3(4)(f)", Relevance: "Money laundering through multiple transactions"},
		)
	case activityType == "Layering":
		refs = append(refs,
			domain.RegulatoryReference{Source: "FATF", Reference: "Recommendation 16", Relevance: "Wire transfers and beneficiary information"},
			domain.RegulatoryReference{Source: "EU AMLR", Reference: "Article 50", Relevance: "Enhanced monitoring for complex transactions"},
		)
	case strings.Contains(activityType, "Trade"):
		refs = append(refs,
			domain.RegulatoryReference{Source: "FATF", Reference: "Trade-Based Money Laundering Typologies Report", Relevance: "Red flags and detection methods for TBML"},
			domain.RegulatoryReference{Source: "Wolfsberg", Reference: "Trade Finance Principles", Relevance: "Due diligence for trade transactions"},
		)
	case strings.Contains(activityType, "Shell"):
		refs = append(refs,
			domain.RegulatoryReference{Source: "FATF", Reference: "Recommendation 24", Relevance: "Transparency of beneficial ownership"},
			domain.RegulatoryReference{Source: "EU AMLD5", Reference: "Article 30", Relevance: "Beneficial ownership registers"},
		)
	}

	return refs
}

func (d *Drafter) summary(input *domain.AdjudicationInput, primary *domain.TypologyMatch, riskFactors []domain.RiskFactor) string {
	tx := &input.Transaction
	stats := &input.AccountHistory.Stats

	typologyText := "suspicious activity"
	if primary != nil {
		typologyText = primary.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b,
		"Account %s has been flagged for potential %s. "+
			"A transaction of $%s via %s on %s triggered automated detection systems. "+
			"The account has processed %d transactions totaling $%s sent and $%s received. "+
			"Statistical analysis indicates a %.1f/10 anomaly score, and narrative coherence "+
			"analysis shows %.0f%% consistency with historical behavior.",
		input.AccountHistory.AccountID,
		typologyText,
		money(tx.AmountSent()),
		tx.PaymentFormat,
		tx.Timestamp.Format("2006-01-02"),
		stats.TotalTransactions,
		money(stats.TotalSent),
		money(stats.TotalReceived),
		input.StatisticalScore,
		input.NarrativeScore*100,
	)

	if len(riskFactors) > 0 {
		fmt.Fprintf(&b, " %d risk factors were identified.", len(riskFactors))
	}

	return b.String()
}

func (d *Drafter) detailedDescription(input *domain.AdjudicationInput, primary *domain.TypologyMatch, riskFactors []domain.RiskFactor, reasoning string) string {
	tx := &input.Transaction
	stats := &input.AccountHistory.Stats

	var sections []string

	txID := tx.ID
	if txID == "" {
		txID = "N/A"
	}
	sections = append(sections, fmt.Sprintf(
		"TRANSACTION DETAILS:\n"+
			"- Transaction ID: %s\n"+
			"- Date/Time: %s\n"+
			"- Amount Sent: $%s %s\n"+
			"- Amount Received: $%s %s\n"+
			"- Payment Method: %s\n"+
			"- Sender: Account %s at Bank %s\n"+
			"- Receiver: Account %s at Bank %s",
		txID,
		tx.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"),
		money(tx.Amount.Sent), tx.Amount.CurrencySent,
		money(tx.Amount.Received), tx.Amount.CurrencyReceived,
		tx.PaymentFormat,
		tx.Sender.AccountID, tx.Sender.BankID,
		tx.Receiver.AccountID, tx.Receiver.BankID,
	))

	sections = append(sections, fmt.Sprintf(
		"ACCOUNT HISTORY:\n"+
			"- Total Transactions: %d\n"+
			"- Total Sent: $%s\n"+
			"- Total Received: $%s\n"+
			"- Average Transaction: $%s\n"+
			"- Unique Counterparties: %d\n"+
			"- Transaction Frequency: %.2f/day\n"+
			"- Account Active Since: %s",
		stats.TotalTransactions,
		money(stats.TotalSent),
		money(stats.TotalReceived),
		money(stats.AvgTransactionAmount),
		stats.UniqueCounterparties,
		stats.TransactionFrequencyPerDay,
		stats.FirstTransaction.Format("2006-01-02"),
	))

	sections = append(sections, fmt.Sprintf(
		"DETECTION ANALYSIS:\n"+
			"- Statistical Anomaly Score: %.2f/10.0\n"+
			"- Narrative Coherence Score: %.2f%%\n"+
			"- Triggered By: %s",
		input.StatisticalScore,
		input.NarrativeScore*100,
		triggerLabel(input.TriggeredBy),
	))

	if primary != nil {
		var signals strings.Builder
		for _, s := range primary.SignalsMatched {
			fmt.Fprintf(&signals, "\n  * %s", s)
		}
		sections = append(sections, fmt.Sprintf(
			"TYPOLOGY ANALYSIS:\n"+
				"- Detected Pattern: %s\n"+
				"- Confidence: %.0f%%\n"+
				"- Description: %s\n"+
				"- Signals Matched:%s",
			primary.Name,
			primary.Confidence*100,
			primary.Description,
			signals.String(),
		))
	}

	if len(riskFactors) > 0 {
		var b strings.Builder
		b.WriteString("RISK FACTORS:\n")
		for i, f := range riskFactors {
			fmt.Fprintf(&b, "%d. %s [%s]\n   %s\n", i+1, f.Factor, strings.ToUpper(string(f.Severity)), f.Description)
			if len(f.Evidence) > 0 {
				fmt.Fprintf(&b, "   Evidence: %s\n", strings.Join(f.Evidence, ", "))
			}
		}
		sections = append(sections, b.String())
	}

	sections = append(sections, "AI ANALYSIS:\n"+reasoning)

	return strings.Join(sections, "\n\n")
}

func triggerLabel(reason domain.TriggerReason) string {
	switch reason {
	case domain.TriggeredByStatistical:
		return "Statistical Engine"
	case domain.TriggeredByNarrative:
		return "Narrative Engine"
	case domain.TriggeredByBoth:
		return "Both Engines"
	default:
		return string(reason)
	}
}

// money formats an amount with thousands separators and two decimals.
func money(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}
