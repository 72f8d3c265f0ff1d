package queue

// Headers stamped on dead-lettered messages by the processor and read back
// by the archiver.
const (
	HeaderEnvelopeID = "Munbon-Envelope-Id"
	HeaderReason     = "Munbon-Failure-Reason"
	HeaderDeliveries = "Munbon-Deliveries"
)
