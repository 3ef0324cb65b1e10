// Package calendar fetches the events of one invoice month from the Google
// Calendar API.
//
// Recurring events are expanded into single instances and returned in start
// time order. Every page of the listing is read, and cancelled instances are
// dropped.
//
// Example usage:
//
//	client, err := calendar.NewClientFromTokenSource(ctx, ts)
//	if err != nil {
//	    return err
//	}
//	events, err := client.ListMonthEvents(ctx, "primary", 2024, time.October)
package calendar
