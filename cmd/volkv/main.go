// Command volkv opens a string-valued volume and drives it interactively.
package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/fatih/color"
	"github.com/go-faker/faker/v4"
	"github.com/sirupsen/logrus"

	"volkv"
	"volkv/logger"
)

func main() {
	dir := flag.String("dir", "volkv-data", "Volume directory.")
	seed := flag.Int("seed", 0, "Seed the volume with N records generated with go-faker, then exit.")
	flag.Parse()

	log := logrus.New()
	vol, err := volkv.OpenString(*dir, volkv.WithLogger(logger.NewLogrus(log)), volkv.WithAutoDelete())
	if err != nil {
		log.Fatalf("open %s: %v", *dir, err)
	}
	defer vol.Close()

	if *seed > 0 {
		if err := seedVolume(vol, *seed); err != nil {
			log.Fatalf("seed: %v", err)
		}
		color.Green("seeded %d records into %s", *seed, *dir)
		return
	}

	repl(vol)
}

func seedVolume(vol *volkv.Volume[string], n int) error {
	for i := 0; i < n; i++ {
		err := vol.Put(uint64(i), faker.Word()+" "+faker.Word())
		if err != nil && !errors.Is(err, volkv.ErrDuplicateKey) {
			return err
		}
	}
	return nil
}

func repl(vol *volkv.Volume[string]) {
	printHelp()
	scanner := bufio.NewScanner(os.Stdin)
	prompt()
	for scanner.Scan() {
		if !process(vol, scanner.Text()) {
			return
		}
		prompt()
	}
}

func printHelp() {
	fmt.Println(`
volkv shell

Available commands:
  SET <key> <val> [ttl]  Insert a key-value pair, optionally with a TTL in seconds
  GET <key>              Retrieve the value for key
  DEL <key>              Remove a key-value pair
  SCAN [n]               List the first n pairs in key order (default 20)
  DIGEST                 xxhash of the full ordered contents
  EXIT                   Flush and terminate the session`)
}

func prompt() {
	fmt.Print("> ")
}

func process(vol *volkv.Volume[string], line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	switch strings.ToLower(fields[0]) {
	case "set":
		doSet(vol, fields[1:])
	case "get":
		doGet(vol, fields[1:])
	case "del":
		doDel(vol, fields[1:])
	case "scan":
		doScan(vol, fields[1:])
	case "digest":
		doDigest(vol)
	case "exit":
		return false
	default:
		color.Red("unknown command %q", fields[0])
	}
	return true
}

func parseKey(s string) (uint64, bool) {
	key, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		color.Red("bad key %q: %v", s, err)
		return 0, false
	}
	return key, true
}

func doSet(vol *volkv.Volume[string], args []string) {
	if len(args) < 2 {
		color.Red("usage: SET <key> <val> [ttl]")
		return
	}
	key, ok := parseKey(args[0])
	if !ok {
		return
	}
	var err error
	if len(args) >= 3 {
		ttl, terr := strconv.ParseUint(args[2], 10, 32)
		if terr != nil {
			color.Red("bad ttl %q: %v", args[2], terr)
			return
		}
		err = vol.PutTTL(key, args[1], uint32(ttl))
	} else {
		err = vol.Put(key, args[1])
	}
	if err != nil {
		color.Red("%v", err)
		return
	}
	color.Green("OK")
}

func doGet(vol *volkv.Volume[string], args []string) {
	if len(args) != 1 {
		color.Red("usage: GET <key>")
		return
	}
	key, ok := parseKey(args[0])
	if !ok {
		return
	}
	val, err := vol.Get(key)
	if err != nil {
		color.Red("%v", err)
		return
	}
	fmt.Println(val)
}

func doDel(vol *volkv.Volume[string], args []string) {
	if len(args) != 1 {
		color.Red("usage: DEL <key>")
		return
	}
	key, ok := parseKey(args[0])
	if !ok {
		return
	}
	if err := vol.Delete(key); err != nil {
		color.Red("%v", err)
		return
	}
	color.Green("OK")
}

func doScan(vol *volkv.Volume[string], args []string) {
	limit := 20
	if len(args) >= 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			color.Red("bad count %q", args[0])
			return
		}
		limit = n
	}
	it, err := vol.Enumerate()
	if err != nil {
		color.Red("%v", err)
		return
	}
	defer it.Close()
	shown := 0
	for it.Next() && shown < limit {
		fmt.Printf("%d\t%s\n", it.Key(), it.Value())
		shown++
	}
	if err := it.Err(); err != nil {
		color.Red("%v", err)
	}
}

// doDigest hashes the ordered key-value stream, a quick way to compare two
// volume directories.
func doDigest(vol *volkv.Volume[string]) {
	it, err := vol.Enumerate()
	if err != nil {
		color.Red("%v", err)
		return
	}
	defer it.Close()
	h := xxhash.New()
	var buf [8]byte
	count := 0
	for it.Next() {
		binary.LittleEndian.PutUint64(buf[:], it.Key())
		_, _ = h.Write(buf[:])
		_, _ = h.WriteString(it.Value())
		count++
	}
	if err := it.Err(); err != nil {
		color.Red("%v", err)
		return
	}
	color.Cyan("%d pairs, digest %016x", count, h.Sum64())
}
