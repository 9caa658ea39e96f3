// Package telemetry resolves configured property addresses against the data
// of a turn and emits custom events to pluggable sinks.
//
// An address has the form "Class[.Nested].Property[ as alias]", for example
// "Activity.From.Name as user". Only a closed set of addresses is supported;
// see Resolver for the list.
package telemetry
