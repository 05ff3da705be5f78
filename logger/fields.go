package logger

// Field keys shared by restkit log lines.
const (
	FieldComponent     = "component"
	FieldCorrelationID = "correlation_id"
	FieldEngine        = "engine"
	FieldMethod        = "method"
	FieldURI           = "uri"
	FieldStatus        = "status"
	FieldError         = "error"
	FieldDuration      = "duration_ms"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	log.Info("pool closed", logger.Fields("evicted", 3))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// CallFields identifies one outbound call.
func CallFields(correlationID, method, uri string) map[string]interface{} {
	m := map[string]interface{}{
		FieldMethod: method,
		FieldURI:    uri,
	}
	if correlationID != "" {
		m[FieldCorrelationID] = correlationID
	}
	return m
}
