package advisor

func categorizePrompt(itemsJSON string) string {
	return "Analyze these receipt items and enhance them with the following information:\n" +
		"1. Add an 'expense_category' field (e.g., 'food', 'transport', 'entertainment')\n" +
		"2. Add a 'split_suggestion' field (e.g., 'personal', 'shared', 'business')\n" +
		"3. Add 'notes' field for any special considerations\n\n" +
		"Keep every existing field of every item and return the items in the same order.\n" +
		"Respond with a JSON array of the enhanced items.\n\n" +
		"Items: " + itemsJSON
}

func splitPrompt(receiptJSON string) string {
	return "Analyze this receipt data and suggest how to split the expense:\n" +
		"1. Determine if this is likely a personal, shared, or business expense\n" +
		"2. If shared, suggest how to split it fairly\n" +
		"3. Provide reasoning for the suggestion\n\n" +
		"Respond with a JSON object with the fields split_type (personal/shared/business), " +
		"split_ratios (if shared) and reasoning.\n\n" +
		"Receipt data: " + receiptJSON
}
