package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ostafen/kv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBucket(func(s *kv.Store, b *kv.Bucket[string, []byte]) error {
				v, err := kv.View(s, func(txn *kv.Txn) ([]byte, error) {
					return kv.Get(txn, b, args[0])
				})
				if err != nil {
					return err
				}
				fmt.Printf("%s\n", v)
				return nil
			}, func(s *kv.Store, b *kv.Bucket[kv.Integer, []byte]) error {
				key, err := parseInteger(args[0])
				if err != nil {
					return err
				}
				v, err := kv.View(s, func(txn *kv.Txn) ([]byte, error) {
					return kv.Get(txn, b, key)
				})
				if err != nil {
					return err
				}
				fmt.Printf("%s\n", v)
				return nil
			})
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := []byte(args[1])
			return withBucket(func(s *kv.Store, b *kv.Bucket[string, []byte]) error {
				return s.WithWriteTxn(func(txn *kv.Txn) error {
					return kv.Set(txn, b, args[0], value)
				})
			}, func(s *kv.Store, b *kv.Bucket[kv.Integer, []byte]) error {
				key, err := parseInteger(args[0])
				if err != nil {
					return err
				}
				return s.WithWriteTxn(func(txn *kv.Txn) error {
					return kv.Set(txn, b, key, value)
				})
			})
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBucket(func(s *kv.Store, b *kv.Bucket[string, []byte]) error {
				return s.WithWriteTxn(func(txn *kv.Txn) error {
					return kv.Del(txn, b, args[0])
				})
			}, func(s *kv.Store, b *kv.Bucket[kv.Integer, []byte]) error {
				key, err := parseInteger(args[0])
				if err != nil {
					return err
				}
				return s.WithWriteTxn(func(txn *kv.Txn) error {
					return kv.Del(txn, b, key)
				})
			})
		},
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists the entries of a bucket in key order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from := viper.GetString("from")
			reverse := viper.GetBool("reverse")
			limit := viper.GetInt("limit")

			return withBucket(func(s *kv.Store, b *kv.Bucket[string, []byte]) error {
				opts := iterOptions(reverse)
				if from != "" {
					opts = append(opts, kv.From(from))
				}
				return s.WithReadTxn(func(txn *kv.Txn) error {
					it, err := kv.Iterate(txn, b, opts...)
					if err != nil {
						return err
					}
					return printEntries(it, limit)
				})
			}, func(s *kv.Store, b *kv.Bucket[kv.Integer, []byte]) error {
				opts := iterOptions(reverse)
				if from != "" {
					key, err := parseInteger(from)
					if err != nil {
						return err
					}
					opts = append(opts, kv.From(key))
				}
				return s.WithReadTxn(func(txn *kv.Txn) error {
					it, err := kv.Iterate(txn, b, opts...)
					if err != nil {
						return err
					}
					return printEntries(it, limit)
				})
			})
		},
	}
	bucketsCmd = &cobra.Command{
		Use:   "buckets",
		Short: "Lists the declared buckets and their flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handle.Read(func(s *kv.Store) error {
				cfg := s.Config()
				for _, name := range s.Buckets() {
					display := name
					if display == "" {
						display = kv.DefaultBucketName
					}
					fmt.Printf("%s\t%s\n", display, cfg.Buckets[name])
				}
				return nil
			})
		},
	}
	statCmd = &cobra.Command{
		Use:   "stat",
		Short: "Prints engine statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handle.Read(func(s *kv.Store) error {
				st, err := s.Stat()
				if err != nil {
					return err
				}
				fmt.Printf("path=%s engine=%s id=%s\n", s.Path(), s.Engine(), s.EnvID())
				fmt.Printf("page_size=%d depth=%d branch_pages=%d leaf_pages=%d overflow_pages=%d entries=%d\n",
					st.PageSize, st.Depth, st.BranchPages, st.LeafPages, st.OverflowPages, st.Entries)

				if viper.GetBool("metrics") {
					kv.WritePrometheus(os.Stdout)
				}
				return nil
			})
		},
	}
	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Flushes buffered writes to disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handle.Read(func(s *kv.Store) error {
				return s.Sync(true)
			})
		},
	}
	saveConfigCmd = &cobra.Command{
		Use:   "save-config [file]",
		Short: "Writes the effective configuration to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handle.Read(func(s *kv.Store) error {
				cfg := s.Config()
				return cfg.Save(args[0])
			})
		},
	}

	envCommands = []*cobra.Command{getCmd, setCmd, delCmd, listCmd, bucketsCmd, statCmd, syncCmd, saveConfigCmd}
)

func init() {
	for _, cmd := range envCommands {
		cmd.PersistentPreRunE = openEnv
		cmd.PersistentPostRunE = closeEnv
	}

	listCmd.Flags().String("from", "", WrapString("Start at this key, or the nearest one after it"))
	listCmd.Flags().Bool("reverse", false, WrapString("List from the largest key to the smallest"))
	listCmd.Flags().Int("limit", 0, WrapString("Print at most this many entries, 0 means no limit"))

	statCmd.Flags().Bool("metrics", false, WrapString("Also print the metrics of this process in Prometheus format"))
}

func iterOptions(reverse bool) []kv.IterOption {
	if reverse {
		return []kv.IterOption{kv.Reverse()}
	}
	return nil
}

func printEntries[K any](it *kv.Iter[K, []byte], limit int) error {
	defer it.Close()

	for n := 0; it.Next(); n++ {
		if limit > 0 && n == limit {
			break
		}
		fmt.Printf("%v\t%s\n", it.Key(), strings.TrimRight(string(it.Value()), "\n"))
	}
	return it.Err()
}
