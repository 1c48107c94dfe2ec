package extractor

import "context"

// EndpointProcessReceipt is the path the extraction service accepts receipts on
const EndpointProcessReceipt = "/process-receipt/"

// ReceiptRequest is the JSON body posted to the extraction service
type ReceiptRequest struct {
	FileBase64    string `json:"file_base64"`
	SenderPhone   string `json:"sender_phone"`
	MimeType      string `json:"mime_type"`
	Timestamp     string `json:"timestamp"`
	TextoCompleto string `json:"texto_completo"`
}

// ReceiptData holds the extracted fields the gateway looks at. Everything
// else the service returns is kept in Extra.
type ReceiptData struct {
	MontoNumerico *float64       `json:"monto_numerico,omitempty"`
	EmisorNombre  string         `json:"emisor_nombre,omitempty"`
	Extra         map[string]any `json:"-"`
}

// ReceiptResponse is the service's answer for one receipt
type ReceiptResponse struct {
	Success          bool         `json:"success"`
	Message          string       `json:"message,omitempty"`
	Data             *ReceiptData `json:"data,omitempty"`
	CuentaDestino    string       `json:"cuenta_destino,omitempty"`
	Confianza        float64      `json:"confianza,omitempty"`
	RequiereRevision bool         `json:"requiere_revision,omitempty"`
	CostoUSD         *float64     `json:"costo_usd,omitempty"`
}

// errorResponse is the error body FastAPI returns for HTTPException
type errorResponse struct {
	Detail any `json:"detail"`
}

// Client submits receipts to the extraction service
type Client interface {
	ProcessReceipt(ctx context.Context, req ReceiptRequest) (*ReceiptResponse, error)
}
