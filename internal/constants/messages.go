package constants

// Replies sent back to senders. These are the only texts the gateway sends.
const (
	ReplyReceiptsOnly       = "📎 Solo se aceptan comprobantes de transferencia (imágenes o PDF)."
	ReplyServiceUnreachable = "⚠️ No pudimos procesar tu comprobante en este momento. El servicio no está disponible, intentá más tarde."
	ReplyServiceTimeout     = "⏳ El procesamiento de tu comprobante está tardando demasiado. Intentá enviarlo nuevamente en unos minutos."
	ReplyGenericFailure     = "❌ Ocurrió un error al procesar tu comprobante. Intentá nuevamente más tarde."
)

// Stdout markers parsed by a supervising process
const (
	MarkerQRStart   = "[QR_DATA]"
	MarkerQREnd     = "[/QR_DATA]"
	MarkerConnected = "[CONNECTED]"
)
