package constants

// AllowedReceiptMimeTypes lists the attachment types accepted as receipts
var AllowedReceiptMimeTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/png":       {},
	"image/jpg":       {},
}

// IsAllowedReceiptType reports whether mimeType is on the allow-list
func IsAllowedReceiptType(mimeType string) bool {
	_, ok := AllowedReceiptMimeTypes[mimeType]
	return ok
}
