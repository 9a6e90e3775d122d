// Package pooltest provides a reusable contract suite for dbpool.Pool
// implementations and connectors.
//
// Integration suites can run it against a container-backed connector without
// importing root test helpers:
//
//	func TestPostgresPoolContract(t *testing.T) {
//		connector := newPostgresConnector(t)
//		pooltest.RunPoolContract(t, connector, pooltest.Options{
//			AcquireTimeout: 2 * time.Second,
//		})
//	}
package pooltest
