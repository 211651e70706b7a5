// Package mailqueue provides a persistent, retrying email dispatch queue with open/click tracking.
//
// Typical flow:
//  1. Enqueue an Email; it is stored as a PENDING Record.
//  2. Start the Mailer; a drain loop selects eligible records by priority and age and dispatches them
//     through a Transport, while a recovery loop moves records stuck in SENDING to DELAYED.
//  3. Outbound content is decorated with a read pixel and click-tracking links that point at the
//     webhook package's endpoint, which calls MarkRead.
//
// Storage engines live in the memstore, mysql and postgres packages; transports in smtp and ses.
package mailqueue
