package handlers

// MaxWebhookBody exposes the webhook body limit to tests.
const MaxWebhookBody = maxWebhookBody
