// Package e2e runs the suite against a live or stubbed Conduit. The tests
// only build with the e2e tag:
//
//	go test -tags e2e ./e2e/...
//
// TEST_ENV selects the api-test.yaml overlay and CONDUIT_MODE=stub runs
// everything against the in-process server.
package e2e
