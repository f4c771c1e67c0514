package extraction

import "fmt"

const systemPrompt = `You extract carbon disclosure data from logistics invoices.
Respond with a single JSON object and nothing else.`

const promptSpec = `Return JSON with these keys:
  co2e_claimed (number, kg CO2e, or null)
  supplier_id (string or null)
  route (string "origin-destination" or null)
  transport_mode ("air", "sea", "road", "rail", or null)
  weight_kg (number in kilograms, or null)
  distance_km (number in kilometers, or null)
  extraction_confidence (number from 0 to 1)
  errors (array of strings describing anything you could not read)
Convert tons to kilograms and miles to kilometers. Use null for absent values.
Placeholders such as [EMAIL_1] stand for redacted personal data; ignore them.`

func composePrompt(text string) string {
	return fmt.Sprintf("%s\n\nInvoice text:\n%s", promptSpec, text)
}
