package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/drunlade/go-ymodem/report"
	"github.com/drunlade/go-ymodem/ymodem"
)

// glog registers -v, -logtostderr and friends on the default flag set.
var (
	port       = flag.String("port", "", "serial port (e.g. /dev/ttyUSB0); stdin/stdout when empty")
	baud       = flag.Int("baud", 115200, "serial baud rate")
	image      = flag.String("image", "image.bin", "image file backing the storage region")
	start      = flag.String("start", "0x08080000", "region start address")
	size       = flag.String("size", "0x40000", "region size in bytes")
	verify     = flag.Bool("verify", false, "read back and compare every packet")
	timeout    = flag.Int("t", 100, "timeout in tenths of seconds")
	retries    = flag.Int("retries", 10, "consecutive timeouts before giving up")
	logFile    = flag.String("log", "", "YMODEM protocol log file (for debugging)")
	mqttBroker = flag.String("mqtt-broker", "", "MQTT broker for status reports (e.g. tcp://localhost:1883)")
	mqttTopic  = flag.String("mqtt-topic", "ymodem/status", "MQTT topic for status reports")
	quiet      = flag.Bool("q", false, "quiet mode")
	help       = flag.Bool("h", false, "show help")
	version    = flag.Bool("version", false, "show version")
)

const versionString = "yrz version 0.1.0"

func main() {
	flag.Parse()
	defer glog.Flush()

	if *help {
		showUsage(0)
	}

	if *version {
		fmt.Println(versionString)
		os.Exit(0)
	}

	if err := run(); err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		glog.Flush()
		os.Exit(1)
	}
}

func run() error {
	region, err := parseRegion(*start, *size)
	if err != nil {
		return err
	}

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := signalContext(sigChan)
	defer cancel()

	var logger ymodem.Logger = ymodem.GlogLogger{}
	if *logFile != "" {
		fileLogger, err := ymodem.NewFileLogger(*logFile)
		if err != nil {
			return fmt.Errorf("create log file: %w", err)
		}
		defer fileLogger.Close()
		logger = fileLogger
	}

	storage, err := ymodem.OpenFileStorage(*image, region)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer storage.Close()

	callbacks := consoleCallbacks()
	if *mqttBroker != "" {
		publisher, err := report.Dial(*mqttBroker, *mqttTopic, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		callbacks = ymodem.ChainCallbacks(callbacks, publisher.Callbacks())
	}

	var (
		reader ymodem.ReaderWithTimeout
		writer io.Writer
	)
	if *port != "" {
		serialPort, err := ymodem.OpenSerial(*port, *baud)
		if err != nil {
			return fmt.Errorf("open %s: %w", *port, err)
		}
		defer serialPort.Close()
		glog.Infof("Opened serial port %s at %d baud", *port, *baud)
		reader, writer = serialPort, serialPort
	} else {
		termIO, err := ymodem.OpenTerminal(os.Stdin, os.Stdout)
		if err != nil {
			return fmt.Errorf("terminal: %w", err)
		}
		defer termIO.Close()
		reader, writer = termIO, termIO
	}

	if *logFile != "" {
		reader = ymodem.NewLoggingReader(reader, logger, "rx")
		writer = ymodem.NewLoggingWriter(writer, logger, "tx")
	}

	config := ymodem.DefaultConfig()
	config.Region = region
	config.Verify = *verify
	config.Timeout = *timeout
	config.MaxErrors = *retries

	session := ymodem.NewSession(reader, writer, storage,
		ymodem.WithConfig(config),
		ymodem.WithCallbacks(callbacks),
		ymodem.WithContext(ctx),
		ymodem.WithSessionLogger(logger),
	)

	if err := session.ReceiveFile(ctx); err != nil {
		return err
	}
	if file, ok := session.Receiver().File(); ok && !*quiet {
		fmt.Fprintf(os.Stderr, "%s -> %s %s\n", file.Name, *image, region)
	}
	return nil
}

func consoleCallbacks() *ymodem.Callbacks {
	return &ymodem.Callbacks{
		OnFileStart: func(filename string, size int64) {
			if !*quiet {
				fmt.Fprintf(os.Stderr, "Receiving: %s (%d bytes)\r\n", filename, size)
			}
		},
		OnProgress: func(filename string, written, total int64, rate float64) {
			if *quiet {
				return
			}
			percent := float64(0)
			if total > 0 {
				percent = float64(written) / float64(total) * 100
			}
			fmt.Fprintf(os.Stderr, "\r%s: %.1f%% (%.0f bytes/s)", filename, percent, rate)
		},
		OnFileComplete: func(filename string, written int64, duration time.Duration) {
			if !*quiet {
				fmt.Fprintf(os.Stderr, "\r\nCompleted: %s (%d bytes in %v)\r\n", filename, written, duration)
			}
		},
		OnError: func(err error, context string) {
			glog.Errorf("Error in %s: %v", context, err)
		},
	}
}

func parseRegion(start, size string) (ymodem.Region, error) {
	s, err := strconv.ParseUint(start, 0, 32)
	if err != nil {
		return ymodem.Region{}, fmt.Errorf("invalid -start %q: %w", start, err)
	}
	n, err := strconv.ParseUint(size, 0, 32)
	if err != nil {
		return ymodem.Region{}, fmt.Errorf("invalid -size %q: %w", size, err)
	}
	if n == 0 || s+n > 1<<32 {
		return ymodem.Region{}, fmt.Errorf("region 0x%x+0x%x does not fit a 32-bit address space", s, n)
	}
	return ymodem.Region{Start: uint32(s), Size: uint32(n)}, nil
}

func signalContext(sigChan chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

func showUsage(exitcode int) {
	fmt.Fprintf(os.Stderr, `%s - receive a file with YMODEM into a storage region

Usage: %s [options]

Options:
  -port DEV          serial port; stdin/stdout when empty
  -baud N            serial baud rate (default: 115200)
  -image FILE        image file backing the region (default: image.bin)
  -start ADDR        region start address (default: 0x08080000)
  -size N            region size in bytes (default: 0x40000)
  -verify            read back and compare every packet
  -t N               timeout in tenths of seconds (default: 100)
  -retries N         consecutive timeouts before giving up (default: 10)
  -log FILE          protocol log file
  -mqtt-broker URL   publish status reports to an MQTT broker
  -mqtt-topic TOPIC  MQTT topic (default: ymodem/status)
  -q                 quiet mode, minimal output
  -v N               glog verbosity (2 logs every packet)
  -h                 show this help message
  --version          show version

Examples:
  %s -port /dev/ttyUSB0 -image fw.bin    # Receive over a serial port
  %s -verify                             # Receive over the terminal

`, versionString, os.Args[0], os.Args[0], os.Args[0])
	os.Exit(exitcode)
}
