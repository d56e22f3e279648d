// Package kv is a typed access layer over embedded, ordered, transactional
// key/value engines.
//
// A Manager hands out Handles on environments, one open environment per
// canonical path, so that every part of a process sees the same Store for
// the same directory:
//
//	cfg, _ := kv.NewConfig("./data", kv.WithBucket("users", 0))
//	h, err := kv.Open(cfg)
//	if err != nil {
//		return err
//	}
//	defer h.Close()
//
//	err = h.Read(func(s *kv.Store) error {
//		users, err := kv.OpenBucket[string, string](s, "users")
//		if err != nil {
//			return err
//		}
//		return s.WithWriteTxn(func(txn *kv.Txn) error {
//			return kv.Set(txn, users, "alice", "admin")
//		})
//	})
//
// Buckets must be declared in the Config. Keys and values pass through a
// Codec; built-in codecs exist for string, []byte, ValueRef, Integer and
// uint64, and package encoding provides codecs for structured values.
//
// Integer keys are stored big-endian, so the byte order of keys matches
// their numeric order on every engine.
package kv
