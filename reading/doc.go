// Package reading defines the telemetry Reading and turns broker messages into
// it.
//
// Panels publish a JSON envelope on DATA/PM/<panel id>:
//
//	{"status":"OK","data":{"v":[..4..],"i":[..4..],"kw":"6.8","kVA":"7.1",
//	 "kWh":"1532.25","pf":0.96,"vunbal":0.3,"iunbal":1.2,"time":"2025-03-14 16:00:05"}}
//
// Route extracts the panel id from the routing key and Decoder validates the
// envelope. Only a non-OK status, a missing data object or malformed JSON is
// rejected (errors.ErrDecodeFailure); individual fields are lenient and fall
// back to zero, and a missing or unparseable time falls back to the ingestion
// time, so a decoded Reading is always fully populated.
package reading
