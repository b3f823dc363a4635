/*
Package iso7816 implements data structures and logic to interact with smart cards according to the ISO/IEC 7816 standard.

This package provides the fundamental building blocks for APDU (Application Protocol Data Unit) communication, including Command and Response structures, Status Word (SW) analysis, and parsers for the File Control Parameters returned by UICC cards.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes, 00 meaning 256).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - 0x98XX: UICC security management errors (e.g. 0x9862, authentication MAC failure).
  - Other: Various error conditions.

# Client

Client drives a Transmitter (a PC/SC card handle, a modem speaking AT+CSIM, a software card)
and hides the T=0 continuation procedures. A single logical command may produce several
physical exchanges; all of them are recorded in the returned Trace.

	client := iso7816.NewClient(card)
	cls, _ := iso7816.NewClass(0x00)

	trace, err := client.Send(iso7816.SelectFile(cls, 0x3F00))
	if err != nil {
	    return err
	}
	if !trace.Completed() {
	    return fmt.Errorf("select MF: %s", trace.Final().Status.Verbose())
	}

# File Selection and FCP

The response to a SELECT depends on its P2 parameter. SelectResult and ParseSelectData handle:

  - FCP (File Control Parameters) - Tag '62'
  - FMD (File Management Data) - Tag '64'
  - FCI (File Control Information) - Tag '6F'
  - Proprietary Data - Tag 'C0' or above

	result, err := iso7816.NewSelectResult(trace)
	if err != nil {
	    return err
	}

	fci, err := result.FCI()
	if err == nil && fci.FCP.Size() >= 0 {
	    fmt.Printf("EF size: %d bytes\n", fci.FCP.Size())
	}

	fmt.Println(result.Describe())
*/
package iso7816
