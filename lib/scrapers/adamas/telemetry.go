package adamas

import (
	"auattend-backend/lib/restyutil"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/adamas")

var restyInstrumentOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput enables dumping of raw portal exchanges on
// all clients created afterwards. Call it before any scrape starts.
func SetRestyInstrumentOutput(output restyutil.InstrumentOutput) {
	restyInstrumentOutput = output
}
