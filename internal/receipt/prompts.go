package receipt

import "fmt"

func transcriptionPrompt(imageURL string) string {
	return "Extract all visible text from the receipt image, maintaining the original " +
		"layout and structure as much as possible. Pay special attention to:\n" +
		"1. Header information (vendor, date, location)\n" +
		"2. Item listings and their format\n" +
		"3. Footer information (totals, taxes, payment details)\n\n" +
		"Image URL: " + imageURL
}

func structuringPrompt(rawText string) string {
	return fmt.Sprintf("Analyze the following receipt text and extract information in JSON format:\n\n"+
		"Receipt Text:\n"+
		"```\n%s\n```\n\n"+
		"Extract and structure the following information:\n"+
		"1. vendor: {name, address, phone (if available), category}\n"+
		"2. transaction: {date (ISO format), time, receipt_number}\n"+
		"3. items: [{name, quantity, unit_price, total_price, category}]\n"+
		"4. summary: {subtotal, tax_details: [{type, amount}], discounts: [{description, amount}], total}\n"+
		"5. payment: {method, card_last_4 (if available), status}\n"+
		"\nEnsure all numerical values are formatted as numbers, not strings.", rawText)
}

func fallbackPrompt(rawText string) string {
	return fmt.Sprintf("The previous analysis returned unstructured data. Please analyze this text "+
		"and return ONLY a valid JSON object with the following structure:\n"+
		"{ \"vendor\": { \"name\": string },\n"+
		"  \"items\": [{ \"name\": string, \"total_price\": number }],\n"+
		"  \"summary\": { \"total\": number },\n"+
		"  \"error\": \"Partial extraction only\" }\n\n"+
		"Receipt Text:\n"+
		"```\n%s\n```\n\n"+
		"Respond with the JSON object and nothing else.", rawText)
}
