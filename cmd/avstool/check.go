package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/obseedian/avstor"
)

// walk visits every key and value reachable from parent, forcing each
// page along the way through the cache and its checksum verification.
func walk(parent *avstor.Node) (keys, values int64, err error) {
	var st avstor.Inorder
	var cur avstor.Node

	if !parent.IsRoot() {
		err = parent.InorderFirst(&st, nil, avstor.Values, &cur)
		for err == nil {
			values++
			if _, _, err = cur.GetValue(); err != nil {
				return keys, values, err
			}
			err = st.Next(&cur)
		}
		if !avstor.IsNotFound(err) {
			return keys, values, err
		}
	}

	err = parent.InorderFirst(&st, nil, avstor.Keys, &cur)
	for err == nil {
		keys++
		var k, v int64
		if k, v, err = walk(&cur); err != nil {
			return keys, values, err
		}
		keys += k
		values += v
		err = st.Next(&cur)
	}
	if avstor.IsNotFound(err) {
		err = nil
	}
	return keys, values, err
}

func newCheckCmd() *cobra.Command {
	var cacheKiB uint
	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Walk the whole hierarchy verifying page checksums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := avstor.Open(args[0], cacheKiB, avstor.OpenReadOnly)
			if err != nil {
				return errors.Wrap(err, "open store")
			}
			defer db.Close()

			var root avstor.Node
			db.NodeInit(&root)
			keys, values, err := walk(&root)
			if err != nil {
				return errors.Wrap(err, "hierarchy walk")
			}
			if err := db.CheckCacheConsistency(); err != nil {
				return errors.Wrap(err, "cache consistency")
			}
			log.WithField("keys", keys).WithField("values", values).Info("check passed")
			return nil
		},
	}
	cmd.Flags().UintVar(&cacheKiB, "cache", 1024, "page cache size in KiB")
	return cmd
}
