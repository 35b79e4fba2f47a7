package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldRoute       = "route"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldOwnerID     = "owner_id"
	FieldBillID      = "bill_id"
	FieldBillName    = "bill_name"
	FieldAmountCents = "amount_cents"
	FieldCategoryID  = "category_id"
	FieldOccurrence  = "occurrence_date"
	FieldTransaction = "transaction_id"
	FieldBucket      = "bucket"
	FieldSheetsRef   = "sheets_ref"
)

// Components
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentBills   = "bills"
	ComponentLedger  = "ledger"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentCache   = "cache"
	ComponentExport  = "export"
)

// Operations
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpSummary  = "summary"
	OpPay      = "pay"
	OpAppend   = "append"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields is a builder for structured log attributes.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	if requestID != "" {
		f[FieldRequestID] = requestID
	}
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithOwner(ownerID string) LogFields {
	if ownerID != "" {
		f[FieldOwnerID] = ownerID
	}
	return f
}

// WithBill adds the identifying fields of a bill.
func (f LogFields) WithBill(ownerID, billID, name string, amountCents int64) LogFields {
	f[FieldOwnerID] = ownerID
	f[FieldBillID] = billID
	if name != "" {
		f[FieldBillName] = name
	}
	f[FieldAmountCents] = amountCents
	return f
}

func (f LogFields) WithHTTPRequest(method, path, route, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if route != "" {
		f[FieldRoute] = route
	}
	if query != "" {
		f[FieldQuery] = query
	}
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice flattens the fields into slog key/value arguments.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
