// Package maker generates two-sided quotes for a single outcome token.
//
// Pricing follows an Avellaneda-Stoikov style reservation price: the
// mid is shifted against inventory, a target spread scaled by the
// adverse-selection multiplier is laid around it, and an order-book
// imbalance nudge is applied. An EWMA volatility estimate feeds the
// reservation shift; a time/inventory urgency model relaxes the
// minimum-profit ask floor as the event approaches.
package maker
