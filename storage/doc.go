// Package storage provides the in-memory keyspace served by the server.
//
// A Store holds one map behind one mutex. Every public method takes the
// lock for its full duration, and Exec lets a caller run several operations
// as one critical section:
//
//	st := storage.New()
//	st.Set("key", protocol.BulkStringFromString("value"), nil)
//	err := st.Exec(func(tx *storage.Tx) error {
//		_, err := tx.AppendToList("list", protocol.BulkStringFromString("a"))
//		return err
//	})
//
// Expiry is passive: an entry past its deadline stays in the map until a
// read observes it, at which point it is deleted and reported as absent.
package storage
