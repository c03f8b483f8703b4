package main

import (
	"context"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/innodb-tools/ibdproc/internal/keyring"
	"github.com/innodb-tools/ibdproc/internal/model"
	"github.com/innodb-tools/ibdproc/internal/pipeline"
)

// newDecryptCmd implements mode 1: decrypt <key_id> <server_uuid> <keyring> <in.ibd> <out.ibd>.
func newDecryptCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <master_key_id> <server_uuid> <keyring> <in.ibd> <out.ibd>",
		Short: "Decrypt a tablespace using a Percona keyring master key",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecrypt(gf, args, false)
		},
	}
}

// newDecryptDecompressCmd implements mode 4: same args as decrypt, but
// also decompresses each page after decrypting it.
func newDecryptDecompressCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt-decompress <master_key_id> <server_uuid> <keyring> <in.ibd> <out.ibd>",
		Short: "Decrypt then decompress a tablespace in one pass per page",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecrypt(gf, args, true)
		},
	}
}

func runDecrypt(gf *globalFlags, args []string, alsoDecompress bool) error {
	masterKeyIDStr, serverUUID, keyringPath, inPath, outPath := args[0], args[1], args[2], args[3], args[4]

	masterKeyID, err := strconv.ParseUint(masterKeyIDStr, 10, 32)
	if err != nil {
		return err
	}

	_, log, err := gf.resolve()
	if err != nil {
		return err
	}

	krData, err := os.ReadFile(keyringPath)
	if err != nil {
		return err
	}
	kr, err := keyring.Load(krData)
	if err != nil {
		return err
	}
	if _, err := kr.Lookup(serverUUID, uint32(masterKeyID)); err != nil {
		return err
	}

	opts := pipeline.Options{Decrypt: true, Decompress: alsoDecompress, Keyring: kr, Workers: gf.workers}
	p, err := pipeline.Open(inPath, opts, log)
	if err != nil {
		return err
	}
	defer p.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	pageSize := p.Tablespace().LogicalPageSize
	if !alsoDecompress {
		pageSize = p.Tablespace().PhysicalPageSize
	}

	return p.Run(context.Background(), opts, func(page model.Page) error {
		_, err := out.WriteAt(page.Data, int64(page.Number)*int64(pageSize))
		return err
	})
}
