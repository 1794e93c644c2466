// Package checkout is the load driver for the checkout API.
//
// A [Driver] sends one POST /checkout per iteration, classifies the response
// into an [Outcome], feeds the three outcome rates and the response checks to
// a metrics recorder, and logs the diagnostic line that goes with the outcome.
// It also runs the health probe and banners around a run, and the
// idempotency probe that repeats one checkout several times.
//
// Classification is exposed as the pure function [Classify] so it can be
// reasoned about without a server.
package checkout
