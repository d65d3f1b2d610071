package adjudicator

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// systemPrompt frames the reasoning service as the final decision maker for
// escalated transactions and pins the JSON output contract.
const systemPrompt = `You are a senior AML/CFT compliance expert acting as the final decision maker in a staged transaction screening system.

Your background:
- Former MLRO (Money Laundering Reporting Officer) at a Tier 1 bank
- Certified Anti-Money Laundering Specialist (CAMS)
- Deep expertise in FATF recommendations, EU AML directives, and US regulations
- Experience with enforcement actions and regulatory examinations

Your role:
- You are the final layer, invoked ONLY when the statistical and narrative gates flag suspicious activity
- You receive pre-computed scores: statistical_score (0-10) and narrative_score (0-1)
- You must synthesize these signals with regulatory knowledge to make a final decision

Your task:
1. Analyze the transaction and account history
2. Consider the statistical and narrative scores
3. Identify the most likely money laundering typology (if any)
4. Make a decision: BLOCK, APPROVE, or REVIEW
5. Provide clear reasoning citing specific regulations

Output format - respond with JSON only:
{
    "decision": "BLOCK" | "APPROVE" | "REVIEW",
    "confidence": 0.0-1.0,
    "typology": "Structuring" | "Smurfing" | "Layering" | "TBML" | "Shell Company" | null,
    "reasoning": "Your detailed reasoning here",
    "key_risk_factors": ["factor1", "factor2"],
    "regulatory_citations": ["FATF Rec 20", "EU AMLD6 Art 3"]
}`

// buildPrompt renders the structured user message for one adjudication.
func buildPrompt(input *domain.AdjudicationInput, primary *domain.TypologyMatch, regulatoryContext string) string {
	tx := &input.Transaction
	stats := &input.AccountHistory.Stats

	statInterp := "LOW ANOMALY"
	if input.StatisticalScore > 5 {
		statInterp = "HIGH ANOMALY"
	} else if input.StatisticalScore > 3 {
		statInterp = "MODERATE ANOMALY"
	}

	narrInterp := "MODERATE DEVIATION"
	if input.NarrativeScore < 0.3 {
		narrInterp = "SEVERE BREAK"
	} else if input.NarrativeScore < 0.5 {
		narrInterp = "SUSPICIOUS"
	}

	var b strings.Builder

	fmt.Fprintf(&b, `TRANSACTION UNDER REVIEW:
- Amount: $%s %s
- Payment Format: %s
- Date: %s
- Sender: Account %s at Bank %s
- Receiver: Account %s at Bank %s

LAYER 1 (STATISTICAL) SCORE: %.2f/10.0
- Interpretation: %s

LAYER 2 (NARRATIVE) SCORE: %.2f%%
- Interpretation: %s

ACCOUNT HISTORY:
- Total Transactions: %d
- Total Sent: $%s
- Total Received: $%s
- Avg Transaction: $%s
- Unique Counterparties: %d
- Frequency: %g/day

TRIGGERED BY: %s ENGINE
`,
		humanize.FormatFloat("#,###.##", tx.AmountSent()), tx.Amount.CurrencySent,
		tx.PaymentFormat,
		tx.Timestamp.Format("2006-01-02 15:04"),
		tx.Sender.AccountID, tx.Sender.BankID,
		tx.Receiver.AccountID, tx.Receiver.BankID,
		input.StatisticalScore, statInterp,
		input.NarrativeScore*100, narrInterp,
		stats.TotalTransactions,
		humanize.FormatFloat("#,###.##", stats.TotalSent),
		humanize.FormatFloat("#,###.##", stats.TotalReceived),
		humanize.FormatFloat("#,###.##", stats.AvgTransactionAmount),
		stats.UniqueCounterparties,
		stats.TransactionFrequencyPerDay,
		strings.ToUpper(string(input.TriggeredBy)),
	)

	if primary != nil {
		fmt.Fprintf(&b, "\nPRE-DETECTED TYPOLOGY: %s\n- Confidence: %.0f%%\n- Signals: %s\n",
			primary.Name, primary.Confidence*100, strings.Join(primary.SignalsMatched, ", "))
	} else {
		b.WriteString("\nPRE-DETECTED TYPOLOGY: None detected\n")
	}

	fmt.Fprintf(&b, "\nREGULATORY CONTEXT:\n%s\n\nBased on all the above, provide your decision as JSON.", regulatoryContext)

	return b.String()
}
