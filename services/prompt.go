package services

import (
	"fmt"
	"time"
)

const systemInstruction = "You are a financial research assistant for the Nepali primary market. Return valid JSON only, with no markdown formatting."

// marketResponseShape documents the JSON document for providers without structured output
const marketResponseShape = `
Return JSON only, matching this structure:
{
  "newsSummary": "string",
  "ipos": [
    {
      "companyName": "string",
      "sector": "string",
      "shareType": "string",
      "units": number,
      "price": number,
      "openingDate": "string",
      "closingDate": "string",
      "status": "OPEN" | "COMING_SOON" | "CLOSED" | "LISTED",
      "description": "string",
      "minUnits": number,
      "maxUnits": number,
      "rating": "string",
      "projectDescription": "string",
      "risks": "string",
      "sourceUrl": "string"
    }
  ]
}`

// buildMarketPrompt asks for open, approved and recently closed Nepali IPOs,
// split by share type so each eligibility class is its own entry.
func buildMarketPrompt(now time.Time) string {
	return fmt.Sprintf(`Current date: %s.
Search the web for the latest Initial Public Offering (IPO) data in Nepal, using sources such as Sharesansar, MeroLagani, Nepali Paisa and CDSC.

Report each share type (target group) as a separate entry. Look explicitly for offerings reserved for:
1. Foreign Employment (Nepali migrant workers). This group matters most.
2. Project Affected Locals.
3. General Public.
4. Mutual Funds.
If a company has an issue open for Foreign Employment as well as the General Public, list two entries.

Cover:
1. IPOs currently open for subscription.
2. IPOs approved by SEBON but not yet open.
3. IPOs that closed recently.

For each entry extract: company name, sector, share type, total units, price per unit in NPR,
opening and closing dates, status (OPEN, COMING_SOON, CLOSED or LISTED), a short description,
minimum and maximum units per applicant, credit rating, project background, key risks and the source URL.

Also write a one-sentence summary of current Nepali primary market news.`, now.Format("Monday, 02 January 2006"))
}
