// Package shape selects overloads from the runtime shape of host arguments.
//
// Dynamic hosts have no static overloading, so every exposed method carries
// a finite list of rules derived from the delegate's signatures:
//
//	invoke(function)          -> Rule{Function}
//	invoke(string, function)  -> Rule{String, Function}
//
// Select scans the rules in declaration order and returns the first match.
// A call that matches nothing fails with an invalid_arguments error naming
// the method and the actual shapes; no delegate is touched.
//
// Kinds are bit sets, so a nullable string position is String|Null. Two rules
// of one method that accept a common argument list are rejected by NewMethod.
package shape
