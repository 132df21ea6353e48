package services

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/cbcbank/ledger/internal/errors"
	"github.com/cbcbank/ledger/internal/models"
)

const (
	MessageTypePacs008 = "pacs.008.001.08"
	MessageTypePacs002 = "pacs.002.001.08"

	defaultAgentBIC = "CBCBZAJJ"
)

type ISO20022Message struct {
	MessageType   string `json:"messageType"`
	TransactionID string `json:"transactionId"`
	XML           string `json:"xml"`
}

// ISO20022Service renders committed ledger rows as interbank messages:
// transfers as pacs.008 credit transfers and reversals as pacs.002 status
// reports against the original reference.
type ISO20022Service struct {
	currency string
	agentBIC string
	now      func() time.Time
}

func NewISO20022Service(currency string) *ISO20022Service {
	if currency == "" {
		currency = "ZAR"
	}
	return &ISO20022Service{
		currency: currency,
		agentBIC: defaultAgentBIC,
		now:      time.Now,
	}
}

func (iso *ISO20022Service) Export(txn *models.Transaction) (*ISO20022Message, error) {
	var (
		doc         any
		messageType string
		err         error
	)

	switch txn.Kind {
	case models.KindTransfer:
		if txn.Status != models.StatusCompleted {
			return nil, errors.NewValidationError("transactionId", "only completed transfers can be exported")
		}
		doc, err = iso.CreatePacs008(txn)
		messageType = MessageTypePacs008
	case models.KindReversal:
		doc, err = iso.CreatePacs002(txn, reversalStatusCode(txn))
		messageType = MessageTypePacs002
	default:
		return nil, errors.NewValidationError("transactionId", fmt.Sprintf("%s transactions have no interbank message", txn.Kind))
	}
	if err != nil {
		return nil, err
	}

	xmlData, err := iso.ConvertToXML(doc)
	if err != nil {
		return nil, err
	}

	return &ISO20022Message{
		MessageType:   messageType,
		TransactionID: txn.ID,
		XML:           xmlData,
	}, nil
}

// ACSC for a settled reversal, RJCT for a declined one.
func reversalStatusCode(txn *models.Transaction) string {
	if txn.Status == models.StatusCompleted {
		return "ACSC"
	}
	return "RJCT"
}

// CreatePacs008 creates a pacs.008 FIToFICustomerCreditTransfer message
func (iso *ISO20022Service) CreatePacs008(txn *models.Transaction) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if txn.ToAccountNumber == "" {
		return nil, errors.NewValidationError("toAccountNumber", "transfer has no destination account")
	}

	msgId := max35(uuid.New().String())
	creDtTm := iso.now().UTC()
	settlementDate := txn.CreatedAt
	amount := txn.Amount.Float()

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(iso.currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "INDA", // booked on our own ledger
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(max35(txn.ID))}[0],
					EndToEndId: common.Max35Text(endToEndID(txn)),
					TxId:       &[]common.Max35Text{common.Max35Text(max35(txn.ID))}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(iso.currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "DEBT",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(iso.agentBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(txn.AccountNumber)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(iso.agentBIC)}[0],
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(txn.ToAccountNumber)}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreatePacs002 creates a pacs.002 payment status report for the row the
// reversal points at.
func (iso *ISO20022Service) CreatePacs002(txn *models.Transaction, status string) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	msgId := max35(uuid.New().String())
	creDtTm := iso.now().UTC()

	original := txn.ReversalOf
	if original == "" {
		original = txn.ID
	}

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(max35(original))}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(endToEndID(txn))}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(max35(original))}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}

	return doc, nil
}

// ConvertToXML converts ISO20022 document to XML string
func (iso *ISO20022Service) ConvertToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

func endToEndID(txn *models.Transaction) string {
	if txn.Reference != "" {
		return max35(txn.Reference)
	}
	return max35(txn.ID)
}

// max35 trims identifiers to fit Max35Text; uuids without dashes fit.
func max35(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 35 {
		return id[:35]
	}
	return id
}
