// Package mailer composes and sends cold-outreach email over SMTP.
//
// SendAll drives many recipients through the bulk runner with bounded
// concurrency and a courtesy delay between sends so the outgoing server
// is never hammered. Resilience behavior comes entirely from the
// configured wrappers.
package mailer
