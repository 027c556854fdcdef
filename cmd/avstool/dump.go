package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/obseedian/avstor"
)

// dumpValues prints every value of a key.
func dumpValues(parent *avstor.Node, depth int) error {
	var st avstor.Inorder
	var cur avstor.Node
	indent := strings.Repeat("  ", depth)

	err := parent.InorderFirst(&st, nil, avstor.Values, &cur)
	for err == nil {
		name, nerr := cur.GetName()
		if nerr != nil {
			return nerr
		}
		typ, data, verr := cur.GetValue()
		if verr != nil {
			return verr
		}
		fmt.Printf("%s%q = %s\n", indent, name, formatValue(&cur, typ, data))
		err = st.Next(&cur)
	}
	if avstor.IsNotFound(err) {
		return nil
	}
	return err
}

func formatValue(n *avstor.Node, typ int, raw []byte) string {
	switch typ {
	case avstor.TypeInt32:
		v, _ := n.GetInt32()
		return fmt.Sprintf("int32(%d)", v)
	case avstor.TypeInt64:
		v, _ := n.GetInt64()
		return fmt.Sprintf("int64(%d)", v)
	case avstor.TypeDouble:
		v, _ := n.GetDouble()
		return fmt.Sprintf("double(%g)", v)
	case avstor.TypeString:
		v, _ := n.GetString()
		return fmt.Sprintf("string(%q)", v)
	case avstor.TypeBinary:
		return fmt.Sprintf("binary(%d bytes)", len(raw))
	case avstor.TypeLink:
		return "link"
	}
	return fmt.Sprintf("type %d (%d bytes)", typ, len(raw))
}

// dumpKeys walks the subkeys of parent depth-first in comparator order.
func dumpKeys(parent *avstor.Node, depth, maxDepth int) error {
	if maxDepth > 0 && depth >= maxDepth {
		return nil
	}
	var st avstor.Inorder
	var cur avstor.Node
	indent := strings.Repeat("  ", depth)

	err := parent.InorderFirst(&st, nil, avstor.Keys, &cur)
	for err == nil {
		name, nerr := cur.GetName()
		if nerr != nil {
			return nerr
		}
		fmt.Printf("%s[%q]\n", indent, name)
		if verr := dumpValues(&cur, depth+1); verr != nil {
			return verr
		}
		if kerr := dumpKeys(&cur, depth+1, maxDepth); kerr != nil {
			return kerr
		}
		err = st.Next(&cur)
	}
	if avstor.IsNotFound(err) {
		return nil
	}
	return err
}

func newDumpCmd() *cobra.Command {
	var (
		cacheKiB uint
		maxDepth int
	)
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Print the node hierarchy in comparator order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := avstor.Open(args[0], cacheKiB, avstor.OpenReadOnly)
			if err != nil {
				return errors.Wrap(err, "open store")
			}
			defer db.Close()

			var root avstor.Node
			db.NodeInit(&root)
			return dumpKeys(&root, 0, maxDepth)
		},
	}
	cmd.Flags().UintVar(&cacheKiB, "cache", 1024, "page cache size in KiB")
	cmd.Flags().IntVar(&maxDepth, "depth", 0, "maximum depth to print (0 = unlimited)")
	return cmd
}
