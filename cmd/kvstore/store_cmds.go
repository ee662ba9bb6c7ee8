package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/kjk/kvstore/kvstore"
	"github.com/kjk/kvstore/log"
	"github.com/kjk/kvstore/u"
)

var (
	flagPutFile  string
	flagPutFresh bool
	flagPutRaw   bool
	flagGetRaw   bool
	flagSlotsRaw bool
)

var putCmd = &cobra.Command{
	Use:   "put <id> [value]",
	Short: "Store a value",
	Long: `Store a value under id, replacing the previous one.

The value is parsed as JSON and stored with the configured serializer.
If it's not valid JSON, it's stored as a string. With --raw the bytes
are stored as they are. With --fresh existing values are removed first.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		var d []byte
		switch {
		case flagPutFile != "":
			var err error
			d, err = os.ReadFile(flagPutFile)
			if err != nil {
				return err
			}
		case len(args) == 2:
			d = []byte(args[1])
		default:
			return fmt.Errorf("must provide a value or --file")
		}
		return withStoreFresh(flagPutFresh, func(s *kvstore.Store) error {
			var err error
			if flagPutRaw {
				err = s.PutRaw(id, d)
			} else {
				err = s.Put(id, parseValue(d))
			}
			if err != nil {
				return err
			}
			log.Event("put", "id", id, "size", len(d), "raw", flagPutRaw)
			return nil
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		return withStore(func(s *kvstore.Store) error {
			d, found, err := s.GetRaw(id)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("'%s' not found", id)
			}
			w := cmd.OutOrStdout()
			if flagGetRaw {
				_, err = w.Write(d)
				return err
			}
			out, err := formatValue(s, d)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(w, out)
			return err
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Aliases: []string{"rm"},
	Short:   "Delete values",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *kvstore.Store) error {
			for _, id := range args {
				ok, err := s.Delete(id)
				if err != nil {
					return err
				}
				if !ok {
					log.Logf("'%s' not found\n", id)
					continue
				}
				log.Event("delete", "id", id)
			}
			return nil
		})
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List identifiers of all values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *kvstore.Store) error {
			keys, err := s.Keys()
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show slot counts and space used",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *kvstore.Store) error {
			st, err := s.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("data file:  %s (%s)\n", s.DataFilePath(), u.FormatSize(st.DataSize))
			fmt.Printf("index file: %s (%s)\n", s.IndexFilePath(), u.FormatSize(st.IndexSize))
			fmt.Printf("serializer: %s\n", s.Serializer().Name())
			fmt.Printf("slots: %d, live: %d, deleted: %d, empty: %d\n", st.Slots, st.Live, st.Tombstones, st.Absent)
			fmt.Printf("live values: %s, orphaned: %s (%.1f%%)\n",
				u.FormatSize(st.LiveBytes), u.FormatSize(st.OrphanedBytes), u.Percent(st.DataSize, st.OrphanedBytes))
			return nil
		})
	},
}

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "Dump all slots of the index file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *kvstore.Store) error {
			return s.Slots(func(off int64, slot *kvstore.Slot) error {
				if flagSlotsRaw {
					fmt.Printf("%d: %s", off, spew.Sdump(slot))
					return nil
				}
				fmt.Println(formatSlot(off, slot))
				return nil
			})
		})
	},
}

func init() {
	putCmd.Flags().StringVarP(&flagPutFile, "file", "f", "", "read value from a file")
	putCmd.Flags().BoolVar(&flagPutFresh, "fresh", false, "remove all values before storing")
	putCmd.Flags().BoolVar(&flagPutRaw, "raw", false, "store value bytes as they are")
	getCmd.Flags().BoolVar(&flagGetRaw, "raw", false, "print serialized bytes")
	slotsCmd.Flags().BoolVar(&flagSlotsRaw, "raw", false, "dump decoded slots")
}

// parseValue returns d decoded as JSON or as a string if it's not JSON
func parseValue(d []byte) any {
	var v any
	if err := json.Unmarshal(d, &v); err == nil {
		return v
	}
	return string(d)
}

// formatValue returns d formatted for humans. JSON is pretty-printed,
// other serializers are decoded and dumped.
func formatValue(s *kvstore.Store, d []byte) (string, error) {
	if len(d) == 0 {
		return "<no value>\n", nil
	}
	if s.Serializer().Name() == "json" {
		return string(pretty.Pretty(d)), nil
	}
	var v any
	if err := s.Serializer().Deserialize(d, &v); err != nil {
		return "", err
	}
	if js, err := json.Marshal(v); err == nil {
		return string(pretty.Pretty(js)), nil
	}
	return spew.Sdump(v), nil
}

func formatSlot(off int64, slot *kvstore.Slot) string {
	pos := strconv.FormatInt(off, 10) + ":"
	switch {
	case slot == nil:
		return pos + " <empty>"
	case slot.Tombstone:
		return fmt.Sprintf("%s DELETED %s [%d, %d)", pos, slot.Identifier, slot.Start, slot.End)
	}
	return fmt.Sprintf("%s %s [%d, %d) %s", pos, slot.Identifier, slot.Start, slot.End, u.FormatSize(slot.Size()))
}
